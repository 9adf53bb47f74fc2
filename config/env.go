package config

import (
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

const envPrefix = "QCIRCUIT_"

func envString(key string, def string) string {
	if v, ok := os.LookupEnv(envPrefix + key); ok {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	if v, ok := os.LookupEnv(envPrefix + key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, errors.Wrapf(err, "parse %s%s", envPrefix, key)
		}
		return d, nil
	}
	return def, nil
}

func envBool(key string, def bool) (bool, error) {
	if v, ok := os.LookupEnv(envPrefix + key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, errors.Wrapf(err, "parse %s%s", envPrefix, key)
		}
		return b, nil
	}
	return def, nil
}

func envInt(key string, def int) (int, error) {
	if v, ok := os.LookupEnv(envPrefix + key); ok {
		i, err := strconv.Atoi(v)
		if err != nil {
			return 0, errors.Wrapf(err, "parse %s%s", envPrefix, key)
		}
		return i, nil
	}
	return def, nil
}

func envInt64(key string, def int64) (int64, error) {
	if v, ok := os.LookupEnv(envPrefix + key); ok {
		i, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, errors.Wrapf(err, "parse %s%s", envPrefix, key)
		}
		return i, nil
	}
	return def, nil
}
