package exporter

import (
	"sync"
	"time"

	"github.com/probekit/reachprobe/config"
)

var cache map[string]cacheEntry
var cacheLock = sync.RWMutex{}

type cacheEntry struct {
	cacheTime time.Time
	result    probeResult
}

func getCacheResult(c *config.Config, target string, useExpiredCache bool) *probeResult {
	cacheLock.RLock()
	defer cacheLock.RUnlock()

	if c.Probe.Cache.Duration == nil {
		return nil
	}

	if entry, ok := cache[target]; ok {
		if entry.cacheTime.Add(time.Duration(*c.Probe.Cache.Duration * float64(time.Second))).After(time.Now()) || useExpiredCache {
			return &entry.result
		}
	}

	return nil
}

func setCacheResult(c *config.Config, target string, result probeResult) {
	cacheLock.Lock()
	defer cacheLock.Unlock()

	if c.Probe.Cache.Duration == nil {
		return
	}

	if cache == nil {
		cache = make(map[string]cacheEntry)
	}

	cache[target] = cacheEntry{
		cacheTime: time.Now(),
		result:    result,
	}
}
