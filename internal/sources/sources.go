// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sources

import (
	"context"
	"fmt"

	yaml "github.com/goccy/go-yaml"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// SourceConfigFactory defines the signature for a function that creates and
// decodes a specific source's configuration. It is typically registered from
// an init() function in the source's package.
type SourceConfigFactory func(ctx context.Context, name string, decoder *yaml.Decoder) (SourceConfig, error)

var sourceRegistry = make(map[string]SourceConfigFactory)

// Register associates a 'kind' string with a factory that can decode and
// produce that kind's SourceConfig. Returns false if kind is already taken.
func Register(kind string, factory SourceConfigFactory) bool {
	if _, exists := sourceRegistry[kind]; exists {
		return false
	}
	sourceRegistry[kind] = factory
	return true
}

// DecodeConfig looks up the registered factory for kind and uses it to
// decode the source configuration.
func DecodeConfig(ctx context.Context, kind string, name string, decoder *yaml.Decoder) (SourceConfig, error) {
	factory, found := sourceRegistry[kind]
	if !found {
		return nil, fmt.Errorf("unknown source kind: %q", kind)
	}
	sourceConfig, err := factory(ctx, name, decoder)
	if err != nil {
		return nil, fmt.Errorf("unable to parse source %q as kind %q: %w", name, kind, err)
	}
	return sourceConfig, nil
}

// SourceConfig produces a connected Source.
type SourceConfig interface {
	SourceConfigKind() string
	Initialize(ctx context.Context, tracer trace.Tracer) (Source, error)
}

// Source is a connected backend a Tool can be bound to. The interface only
// tags the kind; tools depend on the narrower compatibility interfaces they
// actually need (e.g. a `PostgresPool() *pgxpool.Pool` accessor).
type Source interface {
	SourceKind() string
}

// InitConnectionSpan starts a span recording the connection attempt to a
// named source of the given kind, used by source packages around their dial
// logic so connection latency and failures show up in traces uniformly.
func InitConnectionSpan(ctx context.Context, tracer trace.Tracer, sourceKind, sourceName string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(
		ctx,
		"toolbox/server/source/connect",
		trace.WithAttributes(attribute.String("source_kind", sourceKind)),
		trace.WithAttributes(attribute.String("source_name", sourceName)),
	)
	return ctx, span
}
