package scene

import (
	"github.com/Carmen-Shannon/oxy-lighting/engine/light"
)

// SceneBuilderOption is a functional option for configuring a Scene.
// Use the With* functions to create options.
type SceneBuilderOption func(s *scene)

// WithActive sets whether the scene is active for rendering.
//
// Parameters:
//   - active: whether the scene is active
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithActive(active bool) SceneBuilderOption {
	return func(s *scene) {
		s.active = active
	}
}

// WithLights adds initial lights to the scene in the given order.
//
// Parameters:
//   - lights: the lights to add
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithLights(lights ...light.Light) SceneBuilderOption {
	return func(s *scene) {
		for _, l := range lights {
			s.addLight(l)
		}
	}
}

// WithRenderables adds initial renderables to the scene with identity transforms.
//
// Parameters:
//   - renderables: the renderables to add
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithRenderables(renderables ...Renderable) SceneBuilderOption {
	return func(s *scene) {
		for _, r := range renderables {
			s.addRenderable(r)
		}
	}
}
