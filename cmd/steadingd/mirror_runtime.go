package main

import (
	"context"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"steading.world/internal/persistence/mirror"
	"steading.world/internal/sim/tuning"
)

type mirrorRuntime struct {
	enabled bool
	mirror  *mirror.Mirror
}

func buildMirrorRuntime(ctx context.Context, dataDir string, tune tuning.Tuning, logger *log.Logger) (*mirrorRuntime, error) {
	if !envBool("STEADING_MIRROR", false) {
		return &mirrorRuntime{enabled: false}, nil
	}

	client, err := mirror.OpenFromEnv(ctx)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimSpace(os.Getenv("STEADING_MIRROR_PREFIX"))

	m := mirror.New(client, dataDir, prefix,
		tune.MirrorWorkers,
		tune.MirrorQueueCapacity,
		time.Duration(tune.MirrorEnqueueWaitMs)*time.Millisecond,
		logger)

	return &mirrorRuntime{enabled: true, mirror: m}, nil
}

func (r *mirrorRuntime) Enqueue(localPath string) {
	if r == nil || !r.enabled || r.mirror == nil {
		return
	}
	r.mirror.Enqueue(localPath)
}

func (r *mirrorRuntime) Stats() (mirror.Stats, bool) {
	if r == nil || !r.enabled || r.mirror == nil {
		return mirror.Stats{}, false
	}
	return r.mirror.Stats(), true
}

func (r *mirrorRuntime) Close() {
	if r == nil || r.mirror == nil {
		return
	}
	r.mirror.Close()
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
