package ops

import (
	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// StartProfiler pushes continuous profiles to a pyroscope server. An empty
// address disables profiling and the returned stop is a no-op.
func StartProfiler(app, address string, tags map[string]string) (stop func(), err error) {
	if address == "" {
		return func() {}, nil
	}

	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: app,
		ServerAddress:   address,
		Tags:            tags,
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "start pyroscope").With("address", address)
	}

	logs.Infof("pyroscope profiling %s to %s", app, address)
	return func() {
		_ = profiler.Stop()
	}, nil
}
