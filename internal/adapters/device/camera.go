package device

import (
	"context"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"image/png"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"

	"github.com/okian/ecoquest/internal/adapters/photos"
	"github.com/okian/ecoquest/internal/domain/capture"
)

const simulatedPhotoSize = 512

// SimulatedCamera writes a generated picture for each shot. The pixels depend
// only on the action id, so repeated shots of one action are identical.
type SimulatedCamera struct {
	dir  string
	size int

	mu      sync.RWMutex
	allowed bool
}

// NewSimulatedCamera creates a camera writing into dir.
func NewSimulatedCamera(dir string) *SimulatedCamera {
	return &SimulatedCamera{dir: dir, size: simulatedPhotoSize, allowed: true}
}

// SetPermission grants or withdraws camera access.
func (c *SimulatedCamera) SetPermission(allowed bool) {
	c.mu.Lock()
	c.allowed = allowed
	c.mu.Unlock()
}

// TakePicture implements capture.Camera.
func (c *SimulatedCamera) TakePicture(ctx context.Context, actionID string) (string, error) {
	c.mu.RLock()
	allowed := c.allowed
	c.mu.RUnlock()
	if !allowed {
		return "", capture.ErrPermissionDenied
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	stem, err := photos.Stem(actionID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", fmt.Errorf("create camera dir: %w", err)
	}
	path := filepath.Join(c.dir, "mock_eco_action_"+stem+".png")

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create picture: %w", err)
	}
	if err := png.Encode(f, generate(actionID, c.size)); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("encode picture: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("write picture: %w", err)
	}
	return path, nil
}

// generate paints a leafy noise pattern seeded by the action id.
func generate(actionID string, size int) image.Image {
	h := fnv.New64a()
	_, _ = h.Write([]byte(actionID))
	seed := h.Sum64()
	r := rand.New(rand.NewPCG(seed, seed>>1|1))

	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(r.IntN(256)),
				G: uint8(128 + r.IntN(128)),
				B: uint8(r.IntN(128)),
				A: 255,
			})
		}
	}
	return img
}

// FileCamera hands out a picture that already exists, such as an upload.
// An empty path behaves like a cancelled shot.
type FileCamera string

// TakePicture implements capture.Camera.
func (c FileCamera) TakePicture(context.Context, string) (string, error) {
	if c == "" {
		return "", nil
	}
	if _, err := os.Stat(string(c)); err != nil {
		return "", fmt.Errorf("open picture: %w", err)
	}
	return string(c), nil
}
