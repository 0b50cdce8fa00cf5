package scene

import (
	"cmp"
	"slices"
	"sync"

	"github.com/Carmen-Shannon/oxy-lighting/common"
	"github.com/Carmen-Shannon/oxy-lighting/engine/camera"
	"github.com/Carmen-Shannon/oxy-lighting/engine/light"
	"github.com/Carmen-Shannon/oxy-lighting/engine/renderer"
	"github.com/Carmen-Shannon/oxy-lighting/engine/shadow"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/mlange-42/ark/ecs"
)

// LightSource is the ECS component carrying a scene light.
type LightSource struct {
	Light light.Light
	order uint64
}

// Renderable is the ECS component describing a drawable object by its
// object-space bounding sphere.
type Renderable struct {
	Name      string
	Bounds    common.Sphere
	IsDynamic bool
	order     uint64
}

// Transform is the object-to-world matrix of a renderable.
type Transform struct {
	Matrix mgl32.Mat4
}

// drawable is the world-space snapshot of a renderable handed to the renderer.
type drawable struct {
	name    string
	bounds  common.Sphere
	dynamic bool
}

func (d drawable) WorldBounds() common.Sphere { return d.bounds }
func (d drawable) Dynamic() bool              { return d.dynamic }
func (d drawable) String() string             { return d.name }

// GatheredView is one frame's classified scene content for a view.
type GatheredView struct {
	// Lights is the arranged, length-capped light list with the cascade slots reserved.
	Lights light.LightList
	// Drawables holds every renderable in world space.
	Drawables []renderer.Drawable
	// Rejected counts lights dropped by validation.
	Rejected int
}

// Probe returns a dynamic-content probe over the gathered lights and drawables.
func (g GatheredView) Probe() shadow.ListProbe {
	return shadow.ListProbe{Drawables: g.Drawables, Lights: g.Lights}
}

// Scene stores the lights and renderables of one view in an ECS world together
// with the camera that looks at them. Scenes can be toggled with the Active flag
// to switch between views or levels.
// Thread-safe for concurrent access.
type Scene interface {
	// Name returns the scene's identifier.
	Name() string

	// SetName sets the scene's identifier.
	SetName(name string)

	// Active returns whether this scene is set up and drawn each frame.
	Active() bool

	// SetActive sets whether this scene is set up and drawn each frame.
	SetActive(active bool)

	// Camera returns the scene's camera.
	Camera() camera.Camera

	// SetCamera replaces the scene's camera.
	//
	// Parameters:
	//   - cam: the new camera
	SetCamera(cam camera.Camera)

	// AddLight adds a light to the scene.
	//
	// Parameters:
	//   - l: the light
	//
	// Returns:
	//   - ecs.Entity: the entity holding the light
	AddLight(l light.Light) ecs.Entity

	// AddRenderable adds a drawable object with an identity transform.
	//
	// Parameters:
	//   - r: the renderable, bounds in object space
	//
	// Returns:
	//   - ecs.Entity: the entity holding the renderable
	AddRenderable(r Renderable) ecs.Entity

	// SetTransform sets the object-to-world matrix of a renderable.
	//
	// Parameters:
	//   - e: the renderable entity
	//   - m: the new transform
	//
	// Returns:
	//   - bool: false if e is not a live renderable
	SetTransform(e ecs.Entity, m mgl32.Mat4) bool

	// Remove deletes an entity and all of its components.
	//
	// Parameters:
	//   - e: the entity
	//
	// Returns:
	//   - bool: false if e was not alive
	Remove(e ecs.Entity) bool

	// LightCount returns the number of lights in the scene.
	LightCount() int

	// RenderableCount returns the number of renderables in the scene.
	RenderableCount() int

	// Clear removes every light and renderable.
	Clear()

	// Gather classifies the scene for one frame: lights that fail validation are
	// skipped with a warning, the rest are arranged into a LightList in insertion
	// order, and every renderable is resolved to a world-space drawable.
	//
	// Parameters:
	//   - maxLights: light list length cap, reserved slots included
	//   - shadowsEnabled: whether slot 0 may hold a cascade light
	//
	// Returns:
	//   - GatheredView: the classified content
	Gather(maxLights int, shadowsEnabled bool) GatheredView
}

// scene is the implementation of the Scene interface.
type scene struct {
	mu *sync.Mutex

	name   string
	active bool
	cam    camera.Camera

	world       *ecs.World
	lightMap    *ecs.Map1[LightSource]
	objectMap   *ecs.Map2[Renderable, Transform]
	transforms  *ecs.Map1[Transform]
	lightFilter *ecs.Filter1[LightSource]
	objFilter   *ecs.Filter2[Renderable, Transform]

	nextOrder uint64
	lights    int
	objects   int
}

var _ Scene = &scene{}

// NewScene creates a new Scene with the given name and camera.
// Panics if cam is nil.
//
// Parameters:
//   - name: the scene's identifier
//   - cam: the camera the scene is viewed through
//   - options: variadic list of SceneBuilderOption functions
//
// Returns:
//   - Scene: the new scene
func NewScene(name string, cam camera.Camera, options ...SceneBuilderOption) Scene {
	if cam == nil {
		panic("scene: NewScene requires a non-nil Camera")
	}

	world := ecs.NewWorld()
	s := &scene{
		mu:          &sync.Mutex{},
		name:        name,
		active:      true,
		cam:         cam,
		world:       world,
		lightMap:    ecs.NewMap1[LightSource](world),
		objectMap:   ecs.NewMap2[Renderable, Transform](world),
		transforms:  ecs.NewMap1[Transform](world),
		lightFilter: ecs.NewFilter1[LightSource](world),
		objFilter:   ecs.NewFilter2[Renderable, Transform](world),
	}

	for _, opt := range options {
		opt(s)
	}
	return s
}

func (s *scene) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

func (s *scene) SetName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.name = name
}

func (s *scene) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *scene) SetActive(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = active
}

func (s *scene) Camera() camera.Camera {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cam
}

func (s *scene) SetCamera(cam camera.Camera) {
	if cam == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cam = cam
}

func (s *scene) AddLight(l light.Light) ecs.Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLight(l)
}

func (s *scene) addLight(l light.Light) ecs.Entity {
	src := LightSource{Light: l, order: s.nextOrder}
	s.nextOrder++
	s.lights++
	return s.lightMap.NewEntity(&src)
}

func (s *scene) AddRenderable(r Renderable) ecs.Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addRenderable(r)
}

func (s *scene) addRenderable(r Renderable) ecs.Entity {
	r.order = s.nextOrder
	s.nextOrder++
	s.objects++
	t := Transform{Matrix: mgl32.Ident4()}
	return s.objectMap.NewEntity(&r, &t)
}

func (s *scene) SetTransform(e ecs.Entity, m mgl32.Mat4) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.world.Alive(e) || !s.transforms.HasAll(e) {
		return false
	}
	s.transforms.Get(e).Matrix = m
	return true
}

func (s *scene) Remove(e ecs.Entity) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.world.Alive(e) {
		return false
	}
	if s.lightMap.HasAll(e) {
		s.lights--
	}
	if s.transforms.HasAll(e) {
		s.objects--
	}
	s.world.RemoveEntity(e)
	return true
}

func (s *scene) LightCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lights
}

func (s *scene) RenderableCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.objects
}

func (s *scene) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	var dead []ecs.Entity
	query := s.lightFilter.Query()
	for query.Next() {
		dead = append(dead, query.Entity())
	}
	objects := s.objFilter.Query()
	for objects.Next() {
		dead = append(dead, objects.Entity())
	}
	for _, e := range dead {
		s.world.RemoveEntity(e)
	}
	s.lights = 0
	s.objects = 0
}

func (s *scene) Gather(maxLights int, shadowsEnabled bool) GatheredView {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out GatheredView

	sources := make([]LightSource, 0, s.lights)
	query := s.lightFilter.Query()
	for query.Next() {
		src := query.Get()
		if err := light.Validate(src.Light); err != nil {
			out.Rejected++
			common.Logger().Warn("light skipped",
				"component", "scene",
				"scene", s.name,
				"entity", query.Entity().ID(),
				"error", err,
			)
			continue
		}
		sources = append(sources, *src)
	}
	// Archetype storage swap-removes, so insertion order is restored explicitly.
	slices.SortFunc(sources, func(a, b LightSource) int { return cmp.Compare(a.order, b.order) })

	lights := make([]light.Light, len(sources))
	for i, src := range sources {
		lights[i] = src.Light
	}
	out.Lights = light.ArrangeLights(lights, maxLights, shadowsEnabled)

	type ordered struct {
		order uint64
		d     drawable
	}
	objs := make([]ordered, 0, s.objects)
	objects := s.objFilter.Query()
	for objects.Next() {
		r, t := objects.Get()
		objs = append(objs, ordered{
			order: r.order,
			d: drawable{
				name:    r.Name,
				bounds:  WorldBounds(r.Bounds, t.Matrix),
				dynamic: r.IsDynamic,
			},
		})
	}
	slices.SortFunc(objs, func(a, b ordered) int { return cmp.Compare(a.order, b.order) })

	out.Drawables = make([]renderer.Drawable, len(objs))
	for i, o := range objs {
		out.Drawables[i] = o.d
	}
	return out
}

// WorldBounds transforms an object-space bounding sphere by m. The radius is
// scaled by the largest axis scale so the result stays conservative under
// non-uniform scaling.
//
// Parameters:
//   - local: the object-space sphere
//   - m: the object-to-world matrix
//
// Returns:
//   - common.Sphere: the world-space sphere
func WorldBounds(local common.Sphere, m mgl32.Mat4) common.Sphere {
	scale := max(m.Col(0).Vec3().Len(), m.Col(1).Vec3().Len(), m.Col(2).Vec3().Len())
	return common.Sphere{
		Center: common.TransformPoint(m, local.Center),
		Radius: local.Radius * scale,
	}
}
