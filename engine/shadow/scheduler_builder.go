package shadow

// SchedulerBuilderOption is a functional option applied by NewScheduler.
type SchedulerBuilderOption func(*schedulerImpl)

// WithSettings sets the initial shadow settings.
//
// Parameters:
//   - s: the settings, clamped to supported ranges
//
// Returns:
//   - SchedulerBuilderOption: a function that sets the settings
func WithSettings(s Settings) SchedulerBuilderOption {
	return func(sc *schedulerImpl) {
		sc.settings = s
	}
}

// WithProjection replaces the cascade projection. Without it the scheduler uses
// NewUniformShadowProjection at the configured resolution.
//
// Parameters:
//   - p: the projection
//
// Returns:
//   - SchedulerBuilderOption: a function that sets the projection
func WithProjection(p ShadowProjection) SchedulerBuilderOption {
	return func(sc *schedulerImpl) {
		sc.projection = p
	}
}
