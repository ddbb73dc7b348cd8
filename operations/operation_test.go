package operations

import (
	"context"
	"errors"
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/hal-console/dmr-framework/dmr"
	"github.com/hal-console/dmr-framework/pkg/logger"
)

type attributeInput struct {
	Name  string
	Value string
}

func Test_NewOperation(t *testing.T) {
	t.Parallel()

	version := semver.MustParse("1.0.0")
	description := "test operation"
	handler := func(b Bundle, input attributeInput) (output string, err error) {
		return input.Name + "=" + input.Value, nil
	}

	op := NewOperation("format", version, description, handler)

	assert.Equal(t, "format", op.ID())
	assert.Equal(t, version.String(), op.Version())
	assert.Equal(t, description, op.Description())
	assert.Equal(t, op.def, op.Def())
	res, err := op.handler(Bundle{}, attributeInput{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, "a=b", res)
}

func Test_Operation_Execute(t *testing.T) {
	t.Parallel()

	version := semver.MustParse("1.0.0")
	description := "test operation"
	log, observedLog := logger.TestObserved(t, zapcore.InfoLevel)

	handler := func(b Bundle, input attributeInput) (output string, err error) {
		return input.Name + "=" + input.Value, nil
	}

	op := NewOperation("format", version, description, handler)
	e := NewBundle(context.Background, log, nil, nil)

	output, err := op.execute(e, attributeInput{Name: "x", Value: "1"})

	require.NoError(t, err)
	assert.Equal(t, "x=1", output)

	require.Equal(t, 1, observedLog.Len())
	entry := observedLog.All()[0]
	assert.Equal(t, "Executing operation", entry.Message)
	assert.Equal(t, "format", entry.ContextMap()["id"])
	assert.Equal(t, version.String(), entry.ContextMap()["version"])
	assert.Equal(t, description, entry.ContextMap()["description"])
}

func Test_Operation_WithEmptyInput(t *testing.T) {
	t.Parallel()

	handler := func(b Bundle, _ EmptyInput) (int, error) {
		return 1, nil
	}
	op := NewOperation("return-1", semver.MustParse("1.0.0"), "return 1", handler)

	out, err := op.execute(NewBundle(context.Background, logger.Test(t), nil, nil), EmptyInput{})

	require.NoError(t, err)
	assert.Equal(t, 1, out)
}

func Test_Operation_AsUntyped(t *testing.T) {
	t.Parallel()

	version := semver.MustParse("1.0.0")
	description := "test operation"
	handler := func(b Bundle, input attributeInput) (output string, err error) {
		return input.Name + "=" + input.Value, nil
	}
	typedOp := NewOperation("format", version, description, handler)

	untypedOp := typedOp.AsUntyped()
	bundle := NewBundle(t.Context, logger.Test(t), nil, nil)

	assert.Equal(t, "format", untypedOp.ID())
	assert.Equal(t, version.String(), untypedOp.Version())
	assert.Equal(t, description, untypedOp.Description())

	tests := []struct {
		name        string
		input       any
		wantResult  any
		wantErr     bool
		errContains string
	}{
		{
			name:       "valid input",
			input:      attributeInput{Name: "a", Value: "b"},
			wantResult: "a=b",
		},
		{
			name:       "nil input uses the zero value",
			input:      nil,
			wantResult: "=",
		},
		{
			name:        "invalid input type",
			input:       struct{ C int }{C: 5},
			wantErr:     true,
			errContains: "input type mismatch",
		},
		{
			name:        "decoded map input is not converted",
			input:       map[string]any{"Name": "a", "Value": "b"},
			wantErr:     true,
			errContains: "input type mismatch",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			result, err := untypedOp.handler(bundle, tt.input)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantResult, result)
			}
		})
	}
}

func Test_Bundle_Dispatch(t *testing.T) {
	t.Parallel()

	req := dmr.NewOperationBuilder(dmr.MustResourceAddress("subsystem", "ee"), dmr.ReadResourceOperation).MustBuild()
	transportErr := errors.New("connection refused")

	tests := []struct {
		name        string
		dispatcher  Dispatcher
		wantOutcome string
		wantErr     error
		wantFailure bool
	}{
		{
			name:    "no dispatcher",
			wantErr: ErrNoDispatcher,
		},
		{
			name: "success",
			dispatcher: DispatcherFunc(func(ctx context.Context, r dmr.Submittable) (*dmr.Response, error) {
				return &dmr.Response{Outcome: dmr.Success, Result: dmr.NewObject()}, nil
			}),
			wantOutcome: dmr.Success,
		},
		{
			name: "failed outcome",
			dispatcher: DispatcherFunc(func(ctx context.Context, r dmr.Submittable) (*dmr.Response, error) {
				return &dmr.Response{Outcome: dmr.Failed, FailureDescription: dmr.NewString("WFLYCTL0216")}, nil
			}),
			wantOutcome: dmr.Failed,
			wantFailure: true,
		},
		{
			name: "transport error",
			dispatcher: DispatcherFunc(func(ctx context.Context, r dmr.Submittable) (*dmr.Response, error) {
				return nil, transportErr
			}),
			wantErr: transportErr,
		},
		{
			name: "no response",
			dispatcher: DispatcherFunc(func(ctx context.Context, r dmr.Submittable) (*dmr.Response, error) {
				return nil, nil
			}),
			wantErr: ErrNoResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b := NewBundle(t.Context, logger.Test(t), NewMemoryReporter(), tt.dispatcher)
			res, err := b.Dispatch(req)

			switch {
			case tt.wantErr != nil:
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, res)
			case tt.wantFailure:
				var ferr *dmr.FailureError
				require.ErrorAs(t, err, &ferr)
				assert.Equal(t, "WFLYCTL0216", ferr.Description)
				require.NotNil(t, res)
				assert.Equal(t, tt.wantOutcome, res.Outcome)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.wantOutcome, res.Outcome)
			}
		})
	}
}
