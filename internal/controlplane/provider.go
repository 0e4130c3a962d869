package controlplane

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/consentgate/internal/observability/logger"
)

// Source entrega los bytes crudos del documento.
type Source interface {
	Read(ctx context.Context) ([]byte, error)
}

// FileSource lee el YAML desde disco.
type FileSource struct{ Path string }

func (f FileSource) Read(context.Context) ([]byte, error) {
	b, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("controlplane: read %s: %w", f.Path, err)
	}
	return b, nil
}

// BytesSource sirve un documento fijo (tests, CLI).
type BytesSource []byte

func (b BytesSource) Read(context.Context) ([]byte, error) { return b, nil }

// Loader es un read-through cache del snapshot: el primer request lo carga,
// los concurrentes esperan la misma carga, e Invalidate fuerza la próxima.
type Loader struct {
	src  Source
	deps BuildDeps

	mu  sync.RWMutex
	cur *Snapshot
	gen uint64

	sf singleflight.Group
}

type LoaderDeps struct {
	Source Source
	Build  BuildDeps
}

func NewLoader(d LoaderDeps) *Loader {
	return &Loader{src: d.Source, deps: d.Build}
}

// Snapshot devuelve el snapshot vigente, cargándolo si hace falta.
// Un snapshot ya entregado nunca cambia: Invalidate sólo afecta llamadas futuras.
func (l *Loader) Snapshot(ctx context.Context) (*Snapshot, error) {
	l.mu.RLock()
	s, gen := l.cur, l.gen
	l.mu.RUnlock()
	if s != nil {
		return s, nil
	}

	v, err, _ := l.sf.Do(fmt.Sprintf("snapshot:%d", gen), func() (any, error) {
		return l.load(ctx, gen)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

func (l *Loader) load(ctx context.Context, gen uint64) (*Snapshot, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("controlplane.Load"))

	start := time.Now()
	raw, err := l.src.Read(ctx)
	if err != nil {
		return nil, err
	}
	s, err := Parse(raw, l.deps)
	if err != nil {
		log.Error("snapshot rejected", logger.Err(err))
		return nil, err
	}

	l.mu.Lock()
	// si hubo Invalidate durante la carga, no pisamos: el próximo request recarga
	if l.gen == gen {
		l.cur = s
	}
	l.mu.Unlock()

	log.Info("snapshot loaded",
		logger.String("version", s.Version),
		logger.Int("providers", len(s.providers)),
		logger.Int("applications", len(s.applications)),
		logger.Duration(time.Since(start)))
	return s, nil
}

// Invalidate descarta el snapshot cacheado.
func (l *Loader) Invalidate() {
	l.mu.Lock()
	l.cur = nil
	l.gen++
	l.mu.Unlock()
}
