package execution

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"mit.edu/dsg/flowdb/common"
	"mit.edu/dsg/flowdb/inference"
	"mit.edu/dsg/flowdb/planner"
	"mit.edu/dsg/flowdb/storage"
)

func compile(t *testing.T, root *planner.PlanNode, opts ...Option) *Pipeline {
	t.Helper()
	p, err := Compile(root, testRegistry(t), opts...)
	require.NoError(t, err)
	return p
}

func TestPipeline_DoubleScenario(t *testing.T) {
	r := testRegistry(t)
	src := &numbers{batches: [][]int64{{1, 2, 3}, {4, 5}}}
	root := doubleNode(numbersNode(src))

	types, err := inference.NewEngine(r).InferType(root)
	require.NoError(t, err)
	assert.Equal(t, []common.Type{common.IntType}, types)

	p, err := Compile(root, r)
	require.NoError(t, err)
	require.NoError(t, p.Init(context.Background()))

	require.True(t, p.Next())
	assert.True(t, storage.IntColumn(2, 4, 6).Equal(p.Current()), "got %s", p.Current())
	require.True(t, p.Next())
	assert.True(t, storage.IntColumn(8, 10).Equal(p.Current()), "got %s", p.Current())
	assert.False(t, p.Next())
	assert.False(t, p.Next(), "end of stream is sticky")
	require.NoError(t, p.Error())
	require.NoError(t, p.Close())

	stats := p.Stats()
	require.Len(t, stats, 2)
	assert.Equal(t, "double", stats[1].Name)
	assert.Equal(t, int64(2), stats[1].Batches)
	assert.Equal(t, int64(5), stats[1].Rows)
}

func TestPipeline_DeterministicAcrossClones(t *testing.T) {
	src := &numbers{batches: [][]int64{{3, 1}, {4, 1, 5}, {9}}}
	p := compile(t, doubleNode(doubleNode(numbersNode(src))))

	first := p.Clone()
	require.NoError(t, first.Init(context.Background()))
	requireBatches(t, first, []int64{12, 4}, []int64{16, 4, 20}, []int64{36})

	second, err := p.Clone().Collect(context.Background())
	require.NoError(t, err)
	assert.True(t, storage.IntColumn(12, 4, 16, 4, 20, 36).Equal(second))
}

func TestPipeline_LinearChainLength(t *testing.T) {
	r := testRegistry(t)
	src := &numbers{batches: [][]int64{{1, 2, 3, 4}, {5, 6}, {7}}}
	var nodes []*planner.PlanNode
	node := numbersNode(src)
	nodes = append(nodes, node)
	for i := 0; i < 3; i++ {
		node = doubleNode(node)
		nodes = append(nodes, node)
	}

	engine := inference.NewEngine(r)
	for _, n := range nodes {
		length, err := engine.InferLength(n)
		require.NoError(t, err)
		assert.Equal(t, int64(7), length)
	}

	p, err := Compile(node, r, WithInference(engine))
	require.NoError(t, err)
	out, err := p.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, out.NumRows())
	for _, s := range p.Stats() {
		assert.Equal(t, int64(7), s.Rows, "%s", s.Tag)
	}
}

func TestPipeline_DemandDriven(t *testing.T) {
	batches := make([][]int64, 100)
	for i := range batches {
		batches[i] = []int64{int64(i)}
	}
	src := &numbers{batches: batches, handle: &handle{}}
	p := compile(t, doubleNode(numbersNode(src)))
	require.NoError(t, p.Init(context.Background()))

	const pulls = 3
	for i := 0; i < pulls; i++ {
		require.True(t, p.Next())
	}
	assert.Equal(t, int64(pulls), src.emits.Load(), "nothing is produced ahead of demand")
	require.NoError(t, p.Close())

	assert.LessOrEqual(t, src.emits.Load(), int64(pulls+1))
	assert.Equal(t, 1, src.handle.opened)
	assert.Equal(t, 1, src.handle.closed)
	assert.NoError(t, p.Error(), "abandonment is not a failure")
}

func TestPipeline_AbandonmentReleasesOnce(t *testing.T) {
	src := &numbers{batches: [][]int64{{1}, {2}, {3}}, handle: &handle{}}
	p := compile(t, doubleNode(numbersNode(src)))
	require.NoError(t, p.Init(context.Background()))

	require.True(t, p.Next())
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.False(t, p.Next())
	assert.Equal(t, 1, src.handle.closed)

	unstarted := &numbers{batches: [][]int64{{1}}, handle: &handle{}}
	p = compile(t, doubleNode(numbersNode(unstarted)))
	require.NoError(t, p.Init(context.Background()))
	require.NoError(t, p.Close())
	assert.Equal(t, 0, unstarted.handle.opened, "operators that never ran hold nothing")
	assert.Equal(t, int64(0), unstarted.emits.Load())
}

func TestPipeline_ConsumerStopsEarly(t *testing.T) {
	src := &numbers{batches: [][]int64{{1, 2}, {3}, {4}, {5}, {6}}, handle: &handle{}}
	take := planner.NewPlanNode("take", planner.Params{"n": planner.IntParam(2)}, nil, numbersNode(src))
	p := compile(t, take)

	out, err := p.Collect(context.Background())
	require.NoError(t, err)
	assert.True(t, storage.IntColumn(1, 2, 3).Equal(out), "got %s", out)
	assert.LessOrEqual(t, src.emits.Load(), int64(3))
	assert.Equal(t, 1, src.handle.closed)
}

func TestPipeline_EmptyEmitIsSkipped(t *testing.T) {
	src := &numbers{batches: [][]int64{{1}, {}, {}, {2}}}
	p := compile(t, numbersNode(src))
	require.NoError(t, p.Init(context.Background()))
	requireBatches(t, p, []int64{1}, []int64{2})
}

func TestPipeline_FaultTearsDownEverything(t *testing.T) {
	broken := &numbers{batches: [][]int64{{1}, {2}, {3}}, handle: &handle{}}
	healthy := &numbers{batches: [][]int64{{10}, {20}, {30}}, handle: &handle{}}
	fail := planner.NewPlanNode("fail", planner.Params{"after": planner.IntParam(1)}, nil, numbersNode(broken))
	root := planner.NewPlanNode("interleave", nil, nil, fail, numbersNode(healthy))

	core, logs := observer.New(zap.DebugLevel)
	p := compile(t, root, WithLogger(zap.New(core)))
	_, err := p.Collect(context.Background())
	require.Error(t, err)
	assert.True(t, common.IsCode(err, common.ExecutionFaultError))
	assert.True(t, common.IsCode(err, common.ResourceFaultError), "the storage fault is kept as the cause")
	assert.Contains(t, err.Error(), fail.String())

	assert.Equal(t, 1, broken.handle.closed)
	assert.Equal(t, 1, healthy.handle.opened)
	assert.Equal(t, 1, healthy.handle.closed)
	assert.Equal(t, 1, logs.FilterMessage("pipeline failed").Len())
	assert.Equal(t, 1, logs.FilterMessage("operator failed").Len())
}

func TestPipeline_PanicBecomesFault(t *testing.T) {
	src := &numbers{batches: [][]int64{{1}}, handle: &handle{}}
	root := planner.NewPlanNode("fail", planner.Params{"after": planner.IntParam(0), "panic": planner.BoolParam(true)},
		nil, numbersNode(src))
	p := compile(t, root)

	_, err := p.Collect(context.Background())
	require.Error(t, err)
	assert.True(t, common.IsCode(err, common.ExecutionFaultError))
	assert.Contains(t, err.Error(), "operator bug")
	assert.Equal(t, 1, src.handle.closed)
}

func TestPipeline_FanOut(t *testing.T) {
	src := &numbers{batches: [][]int64{{1, 2, 3}, {4, 5}}, handle: &handle{}}
	shared := numbersNode(src)
	root := planner.NewPlanNode("interleave", nil, nil, doubleNode(shared), doubleNode(shared))

	p := compile(t, root)
	require.NoError(t, p.Init(context.Background()))
	requireBatches(t, p, []int64{2, 4, 6}, []int64{2, 4, 6}, []int64{8, 10}, []int64{8, 10})
	require.NoError(t, p.Close())

	assert.Equal(t, int64(2), src.emits.Load(), "a shared node runs once for all its consumers")
	assert.Equal(t, 1, src.handle.opened)
	assert.Equal(t, 1, src.handle.closed)
	assert.Len(t, p.Stats(), 4)
}

func TestPipeline_FanOutWithEarlyStop(t *testing.T) {
	src := &numbers{batches: [][]int64{{1}, {2}, {3}, {4}}, handle: &handle{}}
	shared := numbersNode(src)
	take := planner.NewPlanNode("take", planner.Params{"n": planner.IntParam(1)}, nil, shared)
	root := planner.NewPlanNode("interleave", nil, nil, take, doubleNode(shared))

	p := compile(t, root)
	require.NoError(t, p.Init(context.Background()))
	requireBatches(t, p, []int64{1}, []int64{2}, []int64{4}, []int64{6}, []int64{8})
	assert.Equal(t, 1, src.handle.closed)
}

func TestPipeline_SinkRoot(t *testing.T) {
	var rows int64
	src := &numbers{batches: [][]int64{{1, 2}, {3}}}
	root := planner.NewPlanNode("count", nil, planner.Capabilities{"rows": planner.NewCapability(&rows)}, numbersNode(src))
	p := compile(t, root)
	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, int64(3), rows)
	assert.Empty(t, p.OutputTypes())

	assert.Error(t, p.Init(context.Background()), "a pipeline runs once")
}

func TestPipeline_Cancellation(t *testing.T) {
	src := &numbers{batches: [][]int64{{1}, {2}, {3}}, handle: &handle{}}
	p := compile(t, doubleNode(numbersNode(src)))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, p.Init(ctx))
	require.True(t, p.Next())
	cancel()
	assert.False(t, p.Next())
	assert.True(t, errors.Is(p.Error(), context.Canceled))
	assert.Equal(t, 1, src.handle.closed)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Clone().Collect(cancelled)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestCompile_RejectsBadPlans(t *testing.T) {
	r := testRegistry(t)
	src := &numbers{batches: [][]int64{{1}}}

	_, err := Compile(planner.NewPlanNode("mystery", nil, nil), r)
	assert.True(t, common.IsCode(err, common.UnknownOperatorError))

	_, err = Compile(planner.NewPlanNode("double", nil, nil), r)
	assert.True(t, common.IsCode(err, common.ArityMismatchError))

	_, err = Compile(planner.NewPlanNode("take", planner.Params{"n": planner.StringParam("two")}, nil, numbersNode(src)), r)
	assert.True(t, common.IsCode(err, common.MalformedNodeError))

	_, err = Compile(numbersNode(src), r, WithInference(inference.NewEngine(testRegistry(t))))
	assert.Error(t, err)
	assert.Equal(t, int64(0), src.emits.Load(), "nothing ran")
}

func TestRunParallel(t *testing.T) {
	src := &numbers{batches: [][]int64{{1, 2, 3}, {4, 5}}}
	p := compile(t, doubleNode(numbersNode(src)), WithBatchSize(16))

	const runs = 4
	results := make([]*storage.RowBatch, runs)
	err := RunParallel(context.Background(), p, runs, func(i int, run *Pipeline) error {
		out := storage.NewRowBatch(1, 0)
		for run.Next() {
			out.AppendBatch(run.Current())
		}
		results[i] = out
		return run.Error()
	})
	require.NoError(t, err)
	for _, out := range results {
		assert.True(t, storage.IntColumn(2, 4, 6, 8, 10).Equal(out))
	}

	failure := errors.New("stop")
	err = RunParallel(context.Background(), p, 2, func(i int, run *Pipeline) error {
		return failure
	})
	assert.ErrorIs(t, err, failure)
}

func TestPipeline_Tracing(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := provider.Tracer("test")

	src := &numbers{batches: [][]int64{{1, 2}}}
	p := compile(t, doubleNode(numbersNode(src)), WithTracer(tracer))
	_, err := p.Collect(context.Background())
	require.NoError(t, err)

	broken := planner.NewPlanNode("fail", planner.Params{"after": planner.IntParam(0)}, nil, numbersNode(src))
	_, err = compile(t, broken, WithTracer(tracer)).Collect(context.Background())
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "flowdb.pipeline", spans[0].Name())
	assert.Len(t, spans[0].Events(), 2, "one event per operator")
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}
