package viewer

import (
	"context"
	"image"

	"github.com/normanking/posteravatar/internal/asset"
	"github.com/normanking/posteravatar/internal/scene"
)

// InputHandler receives window input. Any field may be nil.
type InputHandler struct {
	Resized  func(width, height int)
	Dragged  func(dx, dy float64)
	Scrolled func(dy float64)
}

// Surface is the render target a session draws into. Every method is called from
// the goroutine running the session loop.
type Surface interface {
	// Size returns the framebuffer size in pixels.
	Size() (width, height int)
	// SetInputHandler attaches input callbacks; nil detaches them.
	SetInputHandler(h *InputHandler)
	PollEvents()
	ShouldClose() bool

	// LoadCharacter uploads meshes and textures for ch, replacing any previous character.
	LoadCharacter(ch *asset.Character) error
	// SetBackground draws img behind the scene; nil restores the clear color.
	SetBackground(img image.Image) error
	Render(f *scene.Frame)

	// Release frees every GPU resource and the window itself.
	Release()
}

// Loader fetches assets. Implementations must be safe to call from several goroutines.
type Loader interface {
	LoadCharacter(ctx context.Context, url string, progress asset.Progress) (*asset.Character, error)
	LoadBackground(ctx context.Context, url string) (image.Image, error)
}

var _ Loader = (*asset.Loader)(nil)
