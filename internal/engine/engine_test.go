package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cairnhq/cairn/internal/config"
	"github.com/cairnhq/cairn/internal/ir"
	registry "github.com/cairnhq/cairn/internal/provider"
	"github.com/cairnhq/cairn/internal/state"
	"github.com/cairnhq/cairn/pkg/provider"
)

// fakeProvider records every operation and serves errors from per-operation
// queues, so tests can script failures without touching real APIs. It honors
// context cancellation the way a real SDK client would.
type fakeProvider struct {
	mu      sync.Mutex
	schemas map[string]*provider.ResourceSchema
	errs    map[string][]error
	gates   map[string]*opGate
	gone    map[string]bool
	ops     []string
	nextID  int
}

// opGate lets a test hold an operation in flight: started closes when the
// first gated call arrives, and the call proceeds once release is closed.
type opGate struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		schemas: make(map[string]*provider.ResourceSchema),
		errs:    make(map[string][]error),
		gates:   make(map[string]*opGate),
		gone:    make(map[string]bool),
	}
}

// failWith queues errors for an operation on a resource type, e.g.
// failWith("create", "fake_net", err1, err2). Each call to that operation
// consumes one queued error before the provider succeeds again.
func (f *fakeProvider) failWith(op, resourceType string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := op + ":" + resourceType
	f.errs[key] = append(f.errs[key], errs...)
}

func (f *fakeProvider) takeErr(op, resourceType string) error {
	key := op + ":" + resourceType
	queue := f.errs[key]
	if len(queue) == 0 {
		return nil
	}
	f.errs[key] = queue[1:]
	return queue[0]
}

func (f *fakeProvider) operations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.ops))
	copy(out, f.ops)
	return out
}

func (f *fakeProvider) opCount(prefix string) int {
	n := 0
	for _, op := range f.operations() {
		if strings.HasPrefix(op, prefix) {
			n++
		}
	}
	return n
}

func (f *fakeProvider) Configure(ctx context.Context, settings map[string]string) error {
	return nil
}

func (f *fakeProvider) Schema(resourceType string) (*provider.ResourceSchema, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.schemas[resourceType]; ok {
		return s, nil
	}
	return &provider.ResourceSchema{Computed: []string{"id"}}, nil
}

// blockOn gates the named operation: started closes when a call arrives and
// the call waits until the returned release channel is closed.
func (f *fakeProvider) blockOn(op, resourceType string) (started, release chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g := &opGate{started: make(chan struct{}), release: make(chan struct{})}
	f.gates[op+":"+resourceType] = g
	return g.started, g.release
}

func (f *fakeProvider) wait(gate *opGate) {
	if gate == nil {
		return
	}
	gate.once.Do(func() { close(gate.started) })
	<-gate.release
}

func (f *fakeProvider) Create(ctx context.Context, resourceType string, desired map[string]any) (map[string]any, error) {
	f.mu.Lock()
	f.ops = append(f.ops, "create "+resourceType)
	err := f.takeErr("create", resourceType)
	gate := f.gates["create:"+resourceType]
	f.mu.Unlock()

	f.wait(gate)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	return map[string]any{"id": fmt.Sprintf("%s-%d", resourceType, f.nextID)}, nil
}

func (f *fakeProvider) Read(ctx context.Context, resourceType, id string, prior map[string]any) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "read "+resourceType+" "+id)
	if err := f.takeErr("read", resourceType); err != nil {
		return nil, err
	}
	if f.gone[id] {
		return nil, nil
	}
	return prior, nil
}

func (f *fakeProvider) Update(ctx context.Context, resourceType, id string, desired, prior map[string]any) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "update "+resourceType+" "+id)
	if err := f.takeErr("update", resourceType); err != nil {
		return nil, err
	}
	return map[string]any{"id": id}, nil
}

func (f *fakeProvider) Delete(ctx context.Context, resourceType, id string, prior map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "delete "+resourceType+" "+id)
	return f.takeErr("delete", resourceType)
}

// newTestEngine wires a fake provider under the "fake" name with fast
// retries.
func newTestEngine(fp *fakeProvider) *Engine {
	reg := registry.NewRegistry()
	reg.Register("fake", fp)
	eng := New(reg)
	eng.Retry = &RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	return eng
}

func parseConfig(t *testing.T, src string) *config.Module {
	t.Helper()
	mod, err := config.Parse("test.hcl", []byte(src))
	require.NoError(t, err)
	return mod
}

// newTestStore persists the seed records first and then loads the snapshot,
// since Load hands back a copy that never sees later saves.
func newTestStore(t *testing.T, seeds ...*ir.ResourceState) (*state.FileStore, *ir.State) {
	t.Helper()
	ctx := context.Background()
	store := state.NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	if _, err := store.Load(ctx); err != nil {
		t.Fatalf("load state: %v", err)
	}
	for _, rec := range seeds {
		require.NoError(t, store.Save(ctx, rec.Address(), rec))
	}
	snap, err := store.Load(ctx)
	require.NoError(t, err)
	return store, snap
}
