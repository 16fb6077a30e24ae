package catalog

import "github.com/okian/ecoquest/internal/domain/geo"

// DefaultTarget is the gate target used when an entry has none.
var DefaultTarget = geo.Point{Latitude: 48.84769, Longitude: 2.387231, RadiusMeters: 2000}

// Defaults returns the built-in eco-actions and challenges.
func Defaults() []Entry {
	return []Entry{
		{
			ID:          "ramasserDechet",
			Title:       "Ramasser un déchet",
			Description: "Prends une photo avant/après d'un déchet que tu as ramassé et mis dans la poubelle.",
			ImageRef:    "dechet",
			Kind:        KindAction,
		},
		{
			ID:          "ApporterSac",
			Title:       "Apporter son propre sac",
			Description: "Montre-toi en train d'utiliser un sac réutilisable pour faire tes courses.",
			ImageRef:    "sac_reutilisable",
			Kind:        KindAction,
		},
		{
			ID:          "EteindreLumiere",
			Title:       "Éteindre les lumières",
			Description: "Prends une photo avant/après d'une pièce avec la lumière allumée puis éteinte.",
			ImageRef:    "lumiere",
			Kind:        KindAction,
		},
		{
			ID:          "UtiliserGourde",
			Title:       "Utiliser une gourde",
			Description: "Montre ta gourde réutilisable remplie au lieu d'une bouteille en plastique.",
			ImageRef:    "gourde",
			Kind:        KindAction,
		},
		{
			ID:          "PrendreTransport",
			Title:       "Prendre les transports en commun ou le vélo",
			Description: "Fais une photo de toi dans un bus, un métro, ou sur un vélo au lieu de la voiture.",
			ImageRef:    "velo",
			Kind:        KindAction,
		},
		{
			ID:          "Recycler",
			Title:       "Recycler correctement",
			Description: "Prends une photo en train de jeter un déchet dans la bonne poubelle de tri.",
			ImageRef:    "recyclage",
			Kind:        KindAction,
		},
		{
			ID:          "ZeroPlastique",
			Title:       "Journée zéro plastique",
			Description: "Prends une photo de tous les objets réutilisables que tu as utilisés au lieu de plastique jetable.",
			ImageRef:    "zero_plastique",
			Kind:        KindChallenge,
		},
		{
			ID:          "NettoyageCollectif",
			Title:       "Nettoyage collectif",
			Description: "Fais une photo avec un groupe d'amis en train de nettoyer un parc, une plage ou une rue.",
			ImageRef:    "nettoyage",
			Kind:        KindChallenge,
		},
		{
			ID:          "ObjetRecycle",
			Title:       "Créer un objet recyclé",
			Description: "Prends une photo avant/après d'un objet que tu as transformé à partir de matériaux recyclés.",
			ImageRef:    "objet_recycle",
			Kind:        KindChallenge,
		},
		{
			ID:          "RepasVegetarien",
			Title:       "Un repas 100% végétarien",
			Description: "Prends une photo de ton assiette avec un repas végétarien préparé par toi-même.",
			ImageRef:    "repas_vege",
			Kind:        KindChallenge,
		},
	}
}
