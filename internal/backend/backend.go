// Package backend selects a Kafka client library by name.
package backend

import (
	"fmt"
	"runtime/debug"
	"sort"

	"github.com/fikovnik/kafka-consumer/internal/backend/franz"
	"github.com/fikovnik/kafka-consumer/internal/backend/kafkago"
	"github.com/fikovnik/kafka-consumer/internal/backend/sarama"
	"github.com/fikovnik/kafka-consumer/internal/config"
	"github.com/fikovnik/kafka-consumer/internal/fetch"
	"github.com/fikovnik/kafka-consumer/internal/logging"
)

// Backend is one client implementation.
type Backend struct {
	Name   string
	Module string
	Dialer func(logger *logging.Logger) fetch.Dialer
}

var backends = map[string]Backend{
	config.ClientFranz:   {Name: config.ClientFranz, Module: franz.Module, Dialer: franz.Dialer},
	config.ClientSarama:  {Name: config.ClientSarama, Module: sarama.Module, Dialer: sarama.Dialer},
	config.ClientKafkaGo: {Name: config.ClientKafkaGo, Module: kafkago.Module, Dialer: kafkago.Dialer},
}

// Lookup returns the backend registered under name.
func Lookup(name string) (Backend, error) {
	b, ok := backends[name]
	if !ok {
		return Backend{}, fmt.Errorf("unknown client %q (one of %v)", name, Names())
	}
	return b, nil
}

// Names lists the registered backends in sorted order.
func Names() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Version reports the version of the client library linked into the binary,
// or "unknown" when build info is unavailable.
func (b Backend) Version() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	return moduleVersion(info, b.Module)
}

func moduleVersion(info *debug.BuildInfo, module string) string {
	for _, dep := range info.Deps {
		if dep.Path != module {
			continue
		}
		if dep.Replace != nil && dep.Replace.Version != "" {
			return dep.Replace.Version
		}
		if dep.Version != "" {
			return dep.Version
		}
	}
	return "unknown"
}
