package headless

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"sdsim/internal/shared"
	"sdsim/internal/sim"
	"sdsim/internal/track"
)

// Options configures a World.
type Options struct {
	Vehicle VehicleParams
	Camera  shared.CameraConfig
	Loop    track.LoopOptions
	// Waypoints, when more than one, replace the generated loop on scene load.
	Waypoints []string
	// Quit is called once when a controller asks the application to exit.
	Quit   func()
	Logger *slog.Logger
}

type carEntry struct {
	car    *Car
	camera *Camera
}

// World implements sim.Engine.
type World struct {
	mu        sync.Mutex
	scene     string
	cars      map[string]*carEntry
	unbound   int
	timeScale float64
	levelTime float64

	road      *Road
	vehicle   VehicleParams
	camera    shared.CameraConfig
	waypoints []string

	onSceneLoaded func(frontEnd bool)
	quit          func()
	quitOnce      sync.Once
	logger        *slog.Logger
}

var _ sim.Engine = (*World)(nil)

// NewWorld starts in the menu scene with no cars.
func NewWorld(opts Options) *World {
	if opts.Vehicle == (VehicleParams{}) {
		opts.Vehicle = DefaultVehicleParams()
	}
	if opts.Camera == (shared.CameraConfig{}) {
		opts.Camera = DefaultCameraConfig()
	}
	if opts.Loop == (track.LoopOptions{}) {
		opts.Loop = track.DefaultLoopOptions()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	w := &World{
		scene:     sim.SceneMenu,
		cars:      make(map[string]*carEntry),
		timeScale: 1,
		road:      NewRoad(opts.Loop),
		vehicle:   opts.Vehicle,
		camera:    opts.Camera,
		waypoints: opts.Waypoints,
		quit:      opts.Quit,
		logger:    opts.Logger,
	}
	w.road.onRebuilt = w.respawnAll
	return w
}

// respawnAll moves every car's restore point to the new road start.
func (w *World) respawnAll(start shared.Transform) {
	w.mu.Lock()
	cars := make([]*Car, 0, len(w.cars))
	for _, e := range w.cars {
		cars = append(cars, e.car)
	}
	w.mu.Unlock()
	for _, c := range cars {
		c.setSpawn(start)
		c.RestorePosRot()
	}
}

// OnSceneLoaded registers the callback run after every scene load. frontEnd
// is true for the menu scene.
func (w *World) OnSceneLoaded(fn func(frontEnd bool)) {
	w.mu.Lock()
	w.onSceneLoaded = fn
	w.mu.Unlock()
}

// SceneName returns the loaded scene.
func (w *World) SceneName() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.scene
}

// LoadScene switches scene. Every car is destroyed and the level clock restarts.
func (w *World) LoadScene(name string) error {
	switch name {
	case sim.SceneMenu, sim.SceneGeneratedRoad:
	default:
		return fmt.Errorf("unknown scene %q", name)
	}

	if name == sim.SceneGeneratedRoad {
		if len(w.waypoints) > 1 {
			if err := w.road.BuildRoad(w.waypoints); err != nil {
				w.logger.Warn("initial_waypoints_rejected", "error", err)
				w.road.Regenerate()
			}
		} else {
			w.road.Regenerate()
		}
	}

	w.mu.Lock()
	w.scene = name
	w.cars = make(map[string]*carEntry)
	w.levelTime = 0
	hook := w.onSceneLoaded
	w.mu.Unlock()

	w.logger.Info("scene_loaded", "scene", name)
	if hook != nil {
		hook(name == sim.SceneMenu)
	}
	return nil
}

func (w *World) ExitScene() {
	if err := w.LoadScene(sim.SceneMenu); err != nil {
		w.logger.Error("exit_scene_failed", "error", err)
	}
}

func (w *World) Quit() {
	w.quitOnce.Do(func() {
		w.logger.Info("application_quit_requested")
		if w.quit != nil {
			w.quit()
		}
	})
}

// SpawnCar creates a car at the road start. A nil client gets a car keyed
// "unbound-N" that no session controls.
func (w *World) SpawnCar(client sim.Client) (sim.Car, sim.Camera, error) {
	spawn := w.road.start()

	w.mu.Lock()
	defer w.mu.Unlock()
	var id string
	if client == nil {
		w.unbound++
		id = fmt.Sprintf("unbound-%d", w.unbound)
	} else {
		id = client.ID()
	}
	car := newCar(id, spawn, w.vehicle)
	cam := newCamera(car, w.camera)
	w.cars[id] = &carEntry{car: car, camera: cam}
	w.logger.Info("car_spawned", "car_id", id, "cars", len(w.cars))
	return car, cam, nil
}

func (w *World) RemoveCar(client sim.Client) {
	if client == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.cars[client.ID()]; ok {
		delete(w.cars, client.ID())
		w.logger.Info("car_removed", "car_id", client.ID(), "cars", len(w.cars))
	}
}

func (w *World) RemoveAllCars() {
	w.mu.Lock()
	w.cars = make(map[string]*carEntry)
	w.mu.Unlock()
}

// CarIDs lists the spawned cars in key order.
func (w *World) CarIDs() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	ids := make([]string, 0, len(w.cars))
	for id := range w.cars {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Car looks up a spawned car by key.
func (w *World) Car(id string) (*Car, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := w.cars[id]
	if !ok {
		return nil, false
	}
	return e.car, true
}

func (w *World) Path() sim.PathManager { return w.road }

// Road exposes the concrete road for hosts that need its extras.
func (w *World) Road() *Road { return w.road }

func (w *World) SetTimeScale(scale float64) {
	if scale < 0 {
		scale = 0
	}
	w.mu.Lock()
	w.timeScale = scale
	w.mu.Unlock()
}

func (w *World) TimeScale() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.timeScale
}

func (w *World) TimeSinceLevelLoad() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.levelTime
}

// Step advances the level clock and every car by dt seconds.
func (w *World) Step(dt float64) {
	if dt <= 0 {
		return
	}
	w.mu.Lock()
	w.levelTime += dt
	cars := make([]*Car, 0, len(w.cars))
	for _, e := range w.cars {
		cars = append(cars, e.car)
	}
	w.mu.Unlock()

	for _, c := range cars {
		c.step(dt)
	}
}
