package composition_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/percept/composition"
	"github.com/c360/percept/errors"
	"github.com/c360/percept/event"
	"github.com/c360/percept/pipeline"
	"github.com/c360/percept/testutil"
)

// mapResolver is a minimal resolver for engine tests.
type mapResolver map[string]pipeline.Pipeline

func (r mapResolver) Resolve(name string) (pipeline.Pipeline, bool) {
	p, ok := r[name]
	return p, ok
}

func resolverWith(pipelines ...*testutil.StubPipeline) mapResolver {
	r := make(mapResolver)
	for _, p := range pipelines {
		r[p.PipelineName] = p
	}
	return r
}

func TestNewCompositionValidation(t *testing.T) {
	e := composition.NewEngine(resolverWith(testutil.NewStubPipeline("face", pipeline.CapabilityFaceDetection)))

	t.Run("unknown pattern", func(t *testing.T) {
		_, err := e.NewComposition(composition.Spec{Pattern: "pipeline-mesh"})
		assert.ErrorIs(t, err, errors.ErrUnknownPattern)
	})

	t.Run("unknown pipeline fails eagerly", func(t *testing.T) {
		_, err := e.NewComposition(composition.Spec{
			Pattern: composition.Sequential,
			Steps:   []composition.Step{{ID: "s1", Pipeline: "nonexistent"}},
		})
		assert.ErrorIs(t, err, errors.ErrUnknownPipeline)
	})

	t.Run("no steps", func(t *testing.T) {
		_, err := e.NewComposition(composition.Spec{Pattern: composition.Parallel})
		assert.Error(t, err)
	})

	t.Run("adaptive rule without condition", func(t *testing.T) {
		_, err := e.NewComposition(composition.Spec{
			Pattern: composition.Adaptive,
			Rules:   []composition.Rule{{ID: "r1", Pipelines: []string{"face"}}},
		})
		assert.Error(t, err)
	})

	t.Run("valid composition gets an id", func(t *testing.T) {
		comp, err := e.NewComposition(composition.Spec{
			Pattern: composition.Sequential,
			Steps:   []composition.Step{{ID: "s1", Pipeline: "face"}},
		})
		require.NoError(t, err)
		assert.NotEmpty(t, comp.ID)
	})
}

func TestSequentialRunsInOrder(t *testing.T) {
	var order []string
	mk := func(name string) *testutil.StubPipeline {
		s := testutil.NewStubPipeline(name, pipeline.CapabilityFaceDetection)
		s.ProcessFunc = func(_ context.Context, in pipeline.Input) (pipeline.Result, error) {
			order = append(order, name)
			return pipeline.Result{Source: name}, nil
		}
		return s
	}
	e := composition.NewEngine(resolverWith(mk("a"), mk("b"), mk("c")))

	comp, err := e.NewComposition(composition.Spec{
		Pattern: composition.Sequential,
		Steps: []composition.Step{
			{ID: "s1", Pipeline: "a"},
			{ID: "s2", Pipeline: "b"},
			{ID: "s3", Pipeline: "c"},
		},
	})
	require.NoError(t, err)

	res, err := e.Execute(context.Background(), comp, pipeline.NewInput(nil))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []string{"a", "b", "c"}, order)
	require.Len(t, res.Steps, 3)
	assert.Equal(t, "s2", res.Steps[1].StepID)
}

func TestSequentialAbortsOnFailure(t *testing.T) {
	ok := testutil.NewStubPipeline("ok", pipeline.CapabilityFaceDetection)
	bad := testutil.NewStubPipeline("bad", pipeline.CapabilityFaceDetection)
	bad.ProcessFunc = func(context.Context, pipeline.Input) (pipeline.Result, error) {
		return pipeline.Result{}, fmt.Errorf("stage failed")
	}
	never := testutil.NewStubPipeline("never", pipeline.CapabilityFaceDetection)

	e := composition.NewEngine(resolverWith(ok, bad, never))
	comp, err := e.NewComposition(composition.Spec{
		Pattern: composition.Sequential,
		Steps: []composition.Step{
			{ID: "s1", Pipeline: "ok"},
			{ID: "s2", Pipeline: "bad"},
			{ID: "s3", Pipeline: "never"},
		},
	})
	require.NoError(t, err)

	res, err := e.Execute(context.Background(), comp, pipeline.NewInput(nil))
	require.NoError(t, err, "step failures are captured, not raised")
	assert.False(t, res.Success)
	// Results up to and including the failing step.
	require.Len(t, res.Steps, 2)
	assert.True(t, res.Steps[0].Success)
	assert.False(t, res.Steps[1].Success)
	assert.Contains(t, res.Steps[1].Error, "stage failed")

	_, neverCalls, _ := never.Calls()
	assert.Equal(t, 0, neverCalls)
}

// Step 2 must see step 1's output merged with the original input.
func TestSequentialPassPreviousResults(t *testing.T) {
	first := testutil.NewStubPipeline("first", pipeline.CapabilityFaceDetection)
	first.ProcessFunc = func(context.Context, pipeline.Input) (pipeline.Result, error) {
		return pipeline.Result{Source: "first", Data: map[string]any{"x": 1}}, nil
	}
	var seen pipeline.Input
	second := testutil.NewStubPipeline("second", pipeline.CapabilityGazeEstimation)
	second.ProcessFunc = func(_ context.Context, in pipeline.Input) (pipeline.Result, error) {
		seen = in
		return pipeline.Result{Source: "second"}, nil
	}

	e := composition.NewEngine(resolverWith(first, second))
	comp, err := e.NewComposition(composition.Spec{
		Pattern: composition.Sequential,
		Steps: []composition.Step{
			{ID: "s1", Pipeline: "first"},
			{ID: "s2", Pipeline: "second"},
		},
		Options: composition.Options{PassPreviousResults: true},
	})
	require.NoError(t, err)

	_, err = e.Execute(context.Background(), comp, pipeline.NewInput(map[string]any{"frame": 7}))
	require.NoError(t, err)
	assert.Equal(t, 1, seen.Data["x"])
	assert.Equal(t, 7, seen.Data["frame"])
}

func TestParallelWaitAllAggregatesInDeclarationOrder(t *testing.T) {
	mk := func(name string, delay time.Duration, fail bool) *testutil.StubPipeline {
		s := testutil.NewStubPipeline(name, pipeline.CapabilityFaceDetection)
		s.ProcessFunc = func(ctx context.Context, _ pipeline.Input) (pipeline.Result, error) {
			time.Sleep(delay)
			if fail {
				return pipeline.Result{}, fmt.Errorf("%s failed", name)
			}
			return pipeline.Result{Source: name}, nil
		}
		return s
	}
	// First step is the slowest; aggregation order must still match
	// declaration order.
	e := composition.NewEngine(resolverWith(
		mk("slow", 50*time.Millisecond, false),
		mk("failing", 10*time.Millisecond, true),
		mk("quick", time.Millisecond, false),
	))
	comp, err := e.NewComposition(composition.Spec{
		Pattern: composition.Parallel,
		Steps: []composition.Step{
			{ID: "s1", Pipeline: "slow"},
			{ID: "s2", Pipeline: "failing"},
			{ID: "s3", Pipeline: "quick"},
		},
	})
	require.NoError(t, err)

	res, err := e.Execute(context.Background(), comp, pipeline.NewInput(nil))
	require.NoError(t, err)
	assert.False(t, res.Success, "any failed step fails wait_all")
	require.Len(t, res.Steps, 3)
	assert.Equal(t, "slow", res.Steps[0].Pipeline)
	assert.Equal(t, "failing", res.Steps[1].Pipeline)
	assert.Equal(t, "quick", res.Steps[2].Pipeline)
	assert.True(t, res.Steps[0].Success)
	assert.False(t, res.Steps[1].Success)
}

// With maxConcurrency=2 and three ~50ms steps, wall clock lands near 100ms.
func TestParallelConcurrencyBound(t *testing.T) {
	var inFlight, peak atomic.Int32
	mk := func(name string) *testutil.StubPipeline {
		s := testutil.NewStubPipeline(name, pipeline.CapabilityFaceDetection)
		s.ProcessFunc = func(context.Context, pipeline.Input) (pipeline.Result, error) {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(50 * time.Millisecond)
			inFlight.Add(-1)
			return pipeline.Result{Source: name}, nil
		}
		return s
	}
	e := composition.NewEngine(resolverWith(mk("a"), mk("b"), mk("c")))
	comp, err := e.NewComposition(composition.Spec{
		Pattern: composition.Parallel,
		Steps: []composition.Step{
			{ID: "s1", Pipeline: "a"},
			{ID: "s2", Pipeline: "b"},
			{ID: "s3", Pipeline: "c"},
		},
		Options: composition.Options{MaxConcurrency: 2},
	})
	require.NoError(t, err)

	started := time.Now()
	res, err := e.Execute(context.Background(), comp, pipeline.NewInput(nil))
	elapsed := time.Since(started)

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.GreaterOrEqual(t, elapsed, 90*time.Millisecond, "two batches of 50ms expected")
	assert.Less(t, elapsed, 140*time.Millisecond, "must not serialize all three steps")
}

func TestParallelWaitFirstReturnsFirstSuccess(t *testing.T) {
	quick := testutil.NewStubPipeline("quick", pipeline.CapabilityFaceDetection)
	quick.ProcessFunc = func(context.Context, pipeline.Input) (pipeline.Result, error) {
		return pipeline.Result{Source: "quick"}, nil
	}
	slow := testutil.NewStubPipeline("slow", pipeline.CapabilityFaceDetection)
	slow.ProcessFunc = func(context.Context, pipeline.Input) (pipeline.Result, error) {
		time.Sleep(200 * time.Millisecond)
		return pipeline.Result{Source: "slow"}, nil
	}

	e := composition.NewEngine(resolverWith(quick, slow))
	comp, err := e.NewComposition(composition.Spec{
		Pattern: composition.Parallel,
		Steps: []composition.Step{
			{ID: "s1", Pipeline: "slow"},
			{ID: "s2", Pipeline: "quick"},
		},
		Options: composition.Options{Synchronization: composition.WaitFirst},
	})
	require.NoError(t, err)

	started := time.Now()
	res, err := e.Execute(context.Background(), comp, pipeline.NewInput(nil))
	require.NoError(t, err)

	assert.True(t, res.Success)
	require.Len(t, res.Steps, 1, "losers' outcomes are not part of the result")
	assert.Equal(t, "quick", res.Steps[0].Pipeline)
	assert.Less(t, time.Since(started), 150*time.Millisecond,
		"wait_first must not wait for the slow step")
}

func TestParallelWaitFirstAllFail(t *testing.T) {
	mk := func(name string) *testutil.StubPipeline {
		s := testutil.NewStubPipeline(name, pipeline.CapabilityFaceDetection)
		s.ProcessFunc = func(context.Context, pipeline.Input) (pipeline.Result, error) {
			return pipeline.Result{}, fmt.Errorf("%s failed", name)
		}
		return s
	}
	e := composition.NewEngine(resolverWith(mk("a"), mk("b")))
	comp, err := e.NewComposition(composition.Spec{
		Pattern: composition.Parallel,
		Steps: []composition.Step{
			{ID: "s1", Pipeline: "a"},
			{ID: "s2", Pipeline: "b"},
		},
		Options: composition.Options{Synchronization: composition.WaitFirst},
	})
	require.NoError(t, err)

	res, err := e.Execute(context.Background(), comp, pipeline.NewInput(nil))
	require.NoError(t, err)
	assert.False(t, res.Success)
	require.Len(t, res.Steps, 2)
	assert.Equal(t, "a", res.Steps[0].Pipeline)
}

// Both rules match; only the higher-priority rule's pipeline runs.
func TestAdaptiveFirstMatchByPriority(t *testing.T) {
	high := testutil.NewStubPipeline("high", pipeline.CapabilityFaceDetection)
	low := testutil.NewStubPipeline("low", pipeline.CapabilityFaceDetection)

	e := composition.NewEngine(resolverWith(high, low))
	comp, err := e.NewComposition(composition.Spec{
		Pattern: composition.Adaptive,
		Rules: []composition.Rule{
			{
				ID:        "low-priority",
				Condition: func(pipeline.Input) bool { return true },
				Pipelines: []string{"low"},
				Priority:  1,
			},
			{
				ID:        "high-priority",
				Condition: func(pipeline.Input) bool { return true },
				Pipelines: []string{"high"},
				Priority:  10,
			},
		},
	})
	require.NoError(t, err)

	res, err := e.Execute(context.Background(), comp, pipeline.NewInput(nil))
	require.NoError(t, err)
	assert.True(t, res.Success)

	_, highCalls, _ := high.Calls()
	_, lowCalls, _ := low.Calls()
	assert.Equal(t, 1, highCalls)
	assert.Equal(t, 0, lowCalls)
}

func TestAdaptiveConditionBranching(t *testing.T) {
	truePipe := testutil.NewStubPipeline("true-pipeline", pipeline.CapabilityFaceDetection)
	falsePipe := testutil.NewStubPipeline("false-pipeline", pipeline.CapabilityFaceDetection)

	e := composition.NewEngine(resolverWith(truePipe, falsePipe))
	comp, err := e.NewComposition(composition.Spec{
		Pattern: composition.Adaptive,
		Rules: []composition.Rule{
			{
				ID: "above",
				Condition: func(in pipeline.Input) bool {
					v, _ := in.Data["value"].(int)
					return v > 5
				},
				Pipelines: []string{"true-pipeline"},
				Priority:  1,
			},
			{
				ID: "below",
				Condition: func(in pipeline.Input) bool {
					v, _ := in.Data["value"].(int)
					return v <= 5
				},
				Pipelines: []string{"false-pipeline"},
				Priority:  1,
			},
		},
	})
	require.NoError(t, err)

	res, err := e.Execute(context.Background(), comp, pipeline.NewInput(map[string]any{"value": 10}))
	require.NoError(t, err)
	assert.True(t, res.Success)

	_, trueCalls, _ := truePipe.Calls()
	_, falseCalls, _ := falsePipe.Calls()
	assert.Equal(t, 1, trueCalls)
	assert.Equal(t, 0, falseCalls)
}

func TestAdaptiveNoMatchingRule(t *testing.T) {
	p := testutil.NewStubPipeline("face", pipeline.CapabilityFaceDetection)
	e := composition.NewEngine(resolverWith(p))
	comp, err := e.NewComposition(composition.Spec{
		Pattern: composition.Adaptive,
		Rules: []composition.Rule{{
			ID:        "never",
			Condition: func(pipeline.Input) bool { return false },
			Pipelines: []string{"face"},
			Priority:  1,
		}},
	})
	require.NoError(t, err)

	res, err := e.Execute(context.Background(), comp, pipeline.NewInput(nil))
	require.NoError(t, err, "no applicable rule is a normal outcome")
	assert.False(t, res.Success)
	assert.Empty(t, res.Steps)
}

func TestStepTimeout(t *testing.T) {
	hung := testutil.NewStubPipeline("hung", pipeline.CapabilityFaceDetection)
	hung.ProcessFunc = func(ctx context.Context, _ pipeline.Input) (pipeline.Result, error) {
		<-ctx.Done()
		return pipeline.Result{}, ctx.Err()
	}
	e := composition.NewEngine(resolverWith(hung))
	comp, err := e.NewComposition(composition.Spec{
		Pattern: composition.Sequential,
		Steps:   []composition.Step{{ID: "s1", Pipeline: "hung"}},
		Options: composition.Options{StepTimeout: 20 * time.Millisecond},
	})
	require.NoError(t, err)

	started := time.Now()
	res, err := e.Execute(context.Background(), comp, pipeline.NewInput(nil))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Less(t, time.Since(started), time.Second)
}

func TestEngineStats(t *testing.T) {
	p := testutil.NewStubPipeline("face", pipeline.CapabilityFaceDetection)
	e := composition.NewEngine(resolverWith(p))
	comp, err := e.NewComposition(composition.Spec{
		Pattern: composition.Sequential,
		Steps:   []composition.Step{{ID: "s1", Pipeline: "face"}},
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := e.Execute(context.Background(), comp, pipeline.NewInput(nil))
		require.NoError(t, err)
	}

	stats := e.GetStats()
	require.Contains(t, stats, composition.Sequential)
	assert.Equal(t, int64(3), stats[composition.Sequential].Executed)
	assert.Equal(t, int64(3), stats[composition.Sequential].Succeeded)
}

func TestExecutionDefaultsApplied(t *testing.T) {
	hung := testutil.NewStubPipeline("hung", pipeline.CapabilityFaceDetection)
	hung.ProcessFunc = func(ctx context.Context, _ pipeline.Input) (pipeline.Result, error) {
		<-ctx.Done()
		return pipeline.Result{}, ctx.Err()
	}
	e := composition.NewEngine(resolverWith(hung),
		composition.WithExecutionDefaults(2, 20*time.Millisecond))

	// A spec that sets nothing picks up the engine defaults.
	comp, err := e.NewComposition(composition.Spec{
		Pattern: composition.Sequential,
		Steps:   []composition.Step{{ID: "s1", Pipeline: "hung"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, comp.Options.MaxConcurrency)
	assert.Equal(t, 20*time.Millisecond, comp.Options.StepTimeout)

	started := time.Now()
	res, err := e.Execute(context.Background(), comp, pipeline.NewInput(nil))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Steps[0].Error, "step timeout")
	assert.Less(t, time.Since(started), time.Second)

	// Explicit spec options win over the defaults.
	comp, err = e.NewComposition(composition.Spec{
		Pattern: composition.Sequential,
		Steps:   []composition.Step{{ID: "s1", Pipeline: "hung"}},
		Options: composition.Options{MaxConcurrency: 5, StepTimeout: time.Second},
	})
	require.NoError(t, err)
	assert.Equal(t, 5, comp.Options.MaxConcurrency)
	assert.Equal(t, time.Second, comp.Options.StepTimeout)
}

func TestStepCancellationNotLabeledTimeout(t *testing.T) {
	hung := testutil.NewStubPipeline("hung", pipeline.CapabilityFaceDetection)
	hung.ProcessFunc = func(ctx context.Context, _ pipeline.Input) (pipeline.Result, error) {
		<-ctx.Done()
		return pipeline.Result{}, ctx.Err()
	}
	e := composition.NewEngine(resolverWith(hung))
	comp, err := e.NewComposition(composition.Spec{
		Pattern: composition.Sequential,
		Steps:   []composition.Step{{ID: "s1", Pipeline: "hung"}},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := e.Execute(ctx, comp, pipeline.NewInput(nil))
	require.NoError(t, err)
	require.Len(t, res.Steps, 1)
	assert.False(t, res.Steps[0].Success)
	assert.NotContains(t, res.Steps[0].Error, "step timeout")
	assert.Contains(t, res.Steps[0].Error, "context canceled")
}

func TestCompositionCompletedEventPublished(t *testing.T) {
	p := testutil.NewStubPipeline("face", pipeline.CapabilityFaceDetection)
	bus := event.NewBus()
	defer bus.Close()
	sub := bus.Subscribe(event.TypeCompositionCompleted)

	e := composition.NewEngine(resolverWith(p), composition.WithEventBus(bus))
	comp, err := e.NewComposition(composition.Spec{
		Pattern: composition.Sequential,
		Steps:   []composition.Step{{ID: "s1", Pipeline: "face"}},
	})
	require.NoError(t, err)

	res, err := e.Execute(context.Background(), comp, pipeline.NewInput(nil))
	require.NoError(t, err)
	require.True(t, res.Success)

	ev := <-sub.C
	assert.Equal(t, event.TypeCompositionCompleted, ev.Type)
	assert.Equal(t, "composition.completed", string(ev.Type))
	assert.Equal(t, string(composition.Sequential), ev.Data["pattern"])
}
