package server

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/BurntSushi/toml"
)

// configKey identifies one runtime-tunable setting. Bounds are enforced on
// every write; reads never block on validation.
type configKey string

const (
	KeyHeartbeatIntervalS    configKey = "HEARTBEAT_INTERVAL_S"
	KeyHeartbeatCheckDelayS  configKey = "HEARTBEAT_CHECK_DELAY_S"
	KeyHeartbeatTimeoutS     configKey = "HEARTBEAT_TIMEOUT_S"
	KeyClientTimeoutS        configKey = "CLIENT_TIMEOUT_S"
	KeyMaxQueueSize          configKey = "MAX_QUEUE_SIZE"
	KeyThreadPoolSize        configKey = "THREAD_POOL_SIZE"
	KeyMaxUsernameLength     configKey = "MAX_USERNAME_LENGTH"
	KeyMaxSubjectLength      configKey = "MAX_SUBJECT_LENGTH"
	KeyAutoStopWhenNoClients configKey = "AUTO_STOP_WHEN_NO_CLIENTS"
)

// bound describes the legal range for an integer-valued key. Boolean keys
// have no range and are marked by isBool.
type bound struct {
	min, max int64
	isBool   bool
}

var bounds = map[configKey]bound{
	KeyHeartbeatIntervalS:    {min: 5, max: 3600},
	KeyHeartbeatCheckDelayS:  {min: 1, max: 60},
	KeyHeartbeatTimeoutS:     {min: 10, max: 3600},
	KeyClientTimeoutS:        {min: 10, max: 3600},
	KeyMaxQueueSize:          {min: 10, max: 100000},
	KeyThreadPoolSize:        {min: 1, max: 128},
	KeyMaxUsernameLength:     {min: 3, max: 100},
	KeyMaxSubjectLength:      {min: 10, max: 500},
	KeyAutoStopWhenNoClients: {isBool: true},
}

// orderedKeys lists every runtime-tunable key in a stable order, for /config.
var orderedKeys = []configKey{
	KeyHeartbeatIntervalS,
	KeyHeartbeatCheckDelayS,
	KeyHeartbeatTimeoutS,
	KeyClientTimeoutS,
	KeyMaxQueueSize,
	KeyThreadPoolSize,
	KeyMaxUsernameLength,
	KeyMaxSubjectLength,
	KeyAutoStopWhenNoClients,
}

// RuntimeConfig holds the server's tunable settings behind a single lock.
// Callers read once per use rather than holding the lock across a request.
type RuntimeConfig struct {
	mu     sync.RWMutex
	ints   map[configKey]int64
	bools  map[configKey]bool
	dirty  bool
	path   string // backing TOML file; empty if this config isn't file-backed
	onEdit func()
}

// DefaultRuntimeConfig returns a RuntimeConfig populated with sane defaults
// for heartbeat/timeout intervals, queue and pool sizing, and the
// username/subject length limits.
func DefaultRuntimeConfig() *RuntimeConfig {
	return &RuntimeConfig{
		ints: map[configKey]int64{
			KeyHeartbeatIntervalS:   30,
			KeyHeartbeatCheckDelayS: 5,
			KeyHeartbeatTimeoutS:    90,
			KeyClientTimeoutS:       90,
			KeyMaxQueueSize:         10000,
			KeyThreadPoolSize:       12,
			KeyMaxUsernameLength:    32,
			KeyMaxSubjectLength:     100,
		},
		bools: map[configKey]bool{
			KeyAutoStopWhenNoClients: false,
		},
	}
}

// GetInt returns the current value of an integer-valued key.
func (c *RuntimeConfig) GetInt(key configKey) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ints[key]
}

// GetBool returns the current value of a boolean-valued key.
func (c *RuntimeConfig) GetBool(key configKey) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bools[key]
}

// OnEdit registers a callback invoked after every successful Set or Reset,
// once the change has been persisted to disk (if this config is
// file-backed). The server uses this to push keys that components read
// only once at construction — queue capacity, pool size — into the
// already-running components a plain GetInt/GetBool can't reach.
func (c *RuntimeConfig) OnEdit(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEdit = fn
}

// Set validates and applies a new value for key, parsed from its string
// representation (as it arrives from the operator console's /set command).
// On success the change takes effect immediately for subsequent reads, is
// written back to the backing TOML file (if any), and onEdit is invoked.
func (c *RuntimeConfig) Set(key configKey, rawValue string) error {
	b, ok := bounds[key]
	if !ok {
		return fmt.Errorf("unknown config key %q", key)
	}

	c.mu.Lock()
	if b.isBool {
		v, err := strconv.ParseBool(rawValue)
		if err != nil {
			c.mu.Unlock()
			return fmt.Errorf("invalid boolean for %q: %w", key, err)
		}
		c.bools[key] = v
	} else {
		v, err := strconv.ParseInt(rawValue, 10, 64)
		if err != nil {
			c.mu.Unlock()
			return fmt.Errorf("invalid integer for %q: %w", key, err)
		}
		if v < b.min || v > b.max {
			c.mu.Unlock()
			return fmt.Errorf("%q must be between %d and %d (got %d)", key, b.min, b.max, v)
		}
		c.ints[key] = v
	}
	c.dirty = true
	c.mu.Unlock()

	return c.persistAndNotify()
}

// persistAndNotify saves the config and runs onEdit outside of c.mu: Save
// takes its own RLock via toTOML, and onEdit may itself call back into
// GetInt/GetBool, so both must run after the write lock above is released.
func (c *RuntimeConfig) persistAndNotify() error {
	c.mu.RLock()
	path := c.path
	onEdit := c.onEdit
	c.mu.RUnlock()

	var err error
	if path != "" {
		err = SaveRuntimeConfigFile(path, c)
	}
	if onEdit != nil {
		onEdit()
	}
	return err
}

// Snapshot returns every key and its current value as strings, in a stable
// order, for display by /config.
func (c *RuntimeConfig) Snapshot() [][2]string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([][2]string, 0, len(orderedKeys))
	for _, k := range orderedKeys {
		if bounds[k].isBool {
			out = append(out, [2]string{string(k), strconv.FormatBool(c.bools[k])})
		} else {
			out = append(out, [2]string{string(k), strconv.FormatInt(c.ints[k], 10)})
		}
	}
	return out
}

// Reset restores every key to its default value, persisting and notifying
// exactly as Set does.
func (c *RuntimeConfig) Reset() error {
	fresh := DefaultRuntimeConfig()

	c.mu.Lock()
	c.ints = fresh.ints
	c.bools = fresh.bools
	c.dirty = true
	c.mu.Unlock()

	return c.persistAndNotify()
}

// tomlRuntimeConfig mirrors RuntimeConfig's contents for TOML persistence:
// a plain struct with [heartbeat]/[limits]/[lifecycle] sections, decoded
// with BurntSushi/toml.
type tomlRuntimeConfig struct {
	Heartbeat struct {
		IntervalS   int64 `toml:"interval_s"`
		CheckDelayS int64 `toml:"check_delay_s"`
		TimeoutS    int64 `toml:"timeout_s"`
	} `toml:"heartbeat"`
	Limits struct {
		ClientTimeoutS    int64 `toml:"client_timeout_s"`
		MaxQueueSize      int64 `toml:"max_queue_size"`
		ThreadPoolSize    int64 `toml:"thread_pool_size"`
		MaxUsernameLength int64 `toml:"max_username_length"`
		MaxSubjectLength  int64 `toml:"max_subject_length"`
	} `toml:"limits"`
	Lifecycle struct {
		AutoStopWhenNoClients bool `toml:"auto_stop_when_no_clients"`
	} `toml:"lifecycle"`
}

func (c *RuntimeConfig) toTOML() tomlRuntimeConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var t tomlRuntimeConfig
	t.Heartbeat.IntervalS = c.ints[KeyHeartbeatIntervalS]
	t.Heartbeat.CheckDelayS = c.ints[KeyHeartbeatCheckDelayS]
	t.Heartbeat.TimeoutS = c.ints[KeyHeartbeatTimeoutS]
	t.Limits.ClientTimeoutS = c.ints[KeyClientTimeoutS]
	t.Limits.MaxQueueSize = c.ints[KeyMaxQueueSize]
	t.Limits.ThreadPoolSize = c.ints[KeyThreadPoolSize]
	t.Limits.MaxUsernameLength = c.ints[KeyMaxUsernameLength]
	t.Limits.MaxSubjectLength = c.ints[KeyMaxSubjectLength]
	t.Lifecycle.AutoStopWhenNoClients = c.bools[KeyAutoStopWhenNoClients]
	return t
}

// loadTOML applies a decoded config file over the defaults already in c.
// A value of 0 means "absent from the file, keep the default" — 0 is
// out-of-range for every integer key, so it can't be a legitimate override.
// Any present value outside its key's bounds is rejected rather than
// clamped, same as Set, so a hand-edited file can't put a component into a
// state Set itself would refuse to reach.
func (c *RuntimeConfig) loadTOML(t tomlRuntimeConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()

	set := func(key configKey, v int64) {
		if v == 0 {
			return
		}
		if b := bounds[key]; v < b.min || v > b.max {
			return
		}
		c.ints[key] = v
	}
	set(KeyHeartbeatIntervalS, t.Heartbeat.IntervalS)
	set(KeyHeartbeatCheckDelayS, t.Heartbeat.CheckDelayS)
	set(KeyHeartbeatTimeoutS, t.Heartbeat.TimeoutS)
	set(KeyClientTimeoutS, t.Limits.ClientTimeoutS)
	set(KeyMaxQueueSize, t.Limits.MaxQueueSize)
	set(KeyThreadPoolSize, t.Limits.ThreadPoolSize)
	set(KeyMaxUsernameLength, t.Limits.MaxUsernameLength)
	set(KeyMaxSubjectLength, t.Limits.MaxSubjectLength)
	c.bools[KeyAutoStopWhenNoClients] = t.Lifecycle.AutoStopWhenNoClients
}

// LoadRuntimeConfigFile loads tunable settings from a TOML file, falling
// back to defaults (and writing them out) if the file doesn't exist yet.
func LoadRuntimeConfigFile(path string) (*RuntimeConfig, error) {
	cfg := DefaultRuntimeConfig()
	cfg.path = path

	var t tomlRuntimeConfig
	if _, err := toml.DecodeFile(path, &t); err != nil {
		if pathErrIsNotExist(err) {
			if werr := SaveRuntimeConfigFile(path, cfg); werr != nil {
				return cfg, nil
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("server: parse config file %s: %w", path, err)
	}
	cfg.loadTOML(t)
	return cfg, nil
}

// SaveRuntimeConfigFile writes the current tunable settings to path as TOML.
func SaveRuntimeConfigFile(path string, cfg *RuntimeConfig) error {
	f, err := createTruncate(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	return enc.Encode(cfg.toTOML())
}
