// Copyright 2026 The scanexec Authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package scanconfig is the pipeline's validated configuration surface:
// shard count, reduce-queue capacity per shard, dispatch-queue capacity,
// cleanup-queue capacity, and worker count, loaded with
// github.com/spf13/viper and watched for changes with
// github.com/fsnotify/fsnotify.
package scanconfig

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/vectorframe/scanexec/telemetry"
)

// Options is the pipeline's configuration surface. All fields are
// positive integers; capacity fields are rounded to a power of two.
type Options struct {
	ShardCount            int `mapstructure:"shardCount"`
	ReduceQueueCapacity   int `mapstructure:"reduceQueueCapacity"`
	CleanupQueueCapacity  int `mapstructure:"cleanupQueueCapacity"`
	DispatchQueueCapacity int `mapstructure:"dispatchQueueCapacity"`
	WorkerCount           int `mapstructure:"workerCount"`
}

// Defaults returns a reasonable configuration for a single-process demo.
func Defaults() Options {
	return Options{
		ShardCount:            4,
		ReduceQueueCapacity:   1024,
		CleanupQueueCapacity:  1024,
		DispatchQueueCapacity: 256,
		WorkerCount:           4,
	}
}

// Validate checks that shardCount and workerCount are at least 1 and that
// every capacity field is at least 2, then rounds capacity fields up to
// a power of two.
func (o *Options) Validate() error {
	if o.ShardCount < 1 {
		return fmt.Errorf("scanconfig: shardCount must be >= 1, got %d", o.ShardCount)
	}
	if o.WorkerCount < 1 {
		return fmt.Errorf("scanconfig: workerCount must be >= 1, got %d", o.WorkerCount)
	}
	if o.ReduceQueueCapacity < 2 {
		return fmt.Errorf("scanconfig: reduceQueueCapacity must be >= 2, got %d", o.ReduceQueueCapacity)
	}
	if o.CleanupQueueCapacity < 2 {
		return fmt.Errorf("scanconfig: cleanupQueueCapacity must be >= 2, got %d", o.CleanupQueueCapacity)
	}
	if o.DispatchQueueCapacity < 2 {
		return fmt.Errorf("scanconfig: dispatchQueueCapacity must be >= 2, got %d", o.DispatchQueueCapacity)
	}
	o.ReduceQueueCapacity = roundToPow2(o.ReduceQueueCapacity)
	o.CleanupQueueCapacity = roundToPow2(o.CleanupQueueCapacity)
	o.DispatchQueueCapacity = roundToPow2(o.DispatchQueueCapacity)
	return nil
}

func roundToPow2(n int) int {
	if n < 2 {
		return 2
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}

// Store holds the current Options and keeps them current against a
// watched configuration file.
type Store struct {
	mu  sync.RWMutex
	cur Options
}

// Get returns the currently loaded Options.
func (s *Store) Get() Options {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Load reads Options from path via viper, validates them, and watches
// path for changes, re-validating and swapping in the new Options on
// every write (invalid reloads are logged and discarded, keeping the
// last good configuration live).
func Load(path string, log telemetry.Logger) (*Store, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("scanconfig: read %s: %w", path, err)
	}

	opts := Defaults()
	if err := v.Unmarshal(&opts); err != nil {
		return nil, fmt.Errorf("scanconfig: unmarshal %s: %w", path, err)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	s := &Store{cur: opts}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		if log != nil {
			log.Infow("scanconfig: configuration changed, reloading", "file", e.Name)
		}
		reloaded := Defaults()
		if err := v.Unmarshal(&reloaded); err != nil {
			if log != nil {
				log.Errorw("scanconfig: failed to unmarshal reloaded config", "error", err, "file", e.Name)
			}
			return
		}
		if err := reloaded.Validate(); err != nil {
			if log != nil {
				log.Errorw("scanconfig: reloaded config failed validation, keeping previous", "error", err, "file", e.Name)
			}
			return
		}
		s.mu.Lock()
		s.cur = reloaded
		s.mu.Unlock()
	})

	return s, nil
}
