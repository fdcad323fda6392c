package paramstore

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/require"
)

type fakeSSM struct {
	out  *ssm.GetParameterOutput
	err  error
	last *ssm.GetParameterInput
}

func (f *fakeSSM) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.last = in
	return f.out, f.err
}

func strPtr(s string) *string { return &s }

func value(v string) *ssm.GetParameterOutput {
	return &ssm.GetParameterOutput{Parameter: &types.Parameter{Value: strPtr(v)}}
}

func TestNew_NilAPI(t *testing.T) {
	_, err := New(nil)
	require.EqualError(t, err, "paramstore: api must not be nil")
}

func TestGetParameter_RequestsDecryptedTrimmedName(t *testing.T) {
	api := &fakeSSM{out: value(`{"token":"sk-journal"}`)}
	c, err := New(api)
	require.NoError(t, err)

	v, err := c.GetParameter(context.Background(), "  /journal/open-ai-token ")
	require.NoError(t, err)
	require.Equal(t, `{"token":"sk-journal"}`, v)
	require.Equal(t, "/journal/open-ai-token", *api.last.Name)
	require.True(t, *api.last.WithDecryption)
}

func TestGetParameter(t *testing.T) {
	cases := []struct {
		name    string
		api     *fakeSSM
		param   string
		want    string
		wantErr string
		notFnd  bool
	}{
		{name: "trims value", api: &fakeSSM{out: value("  gpt-4o-mini\n")}, param: "/journal/config/openai_model", want: "gpt-4o-mini"},
		{name: "empty name", api: &fakeSSM{}, param: "  ", wantErr: "paramstore: name is required"},
		{name: "missing value", api: &fakeSSM{out: &ssm.GetParameterOutput{Parameter: &types.Parameter{}}}, param: "p", wantErr: "paramstore: parameter missing value"},
		{name: "nil output", api: &fakeSSM{}, param: "p", wantErr: "paramstore: parameter missing value"},
		{name: "api error", api: &fakeSSM{err: errors.New("throttled")}, param: "p", wantErr: `paramstore: get parameter "p": throttled`},
		{name: "not found", api: &fakeSSM{err: &types.ParameterNotFound{Message: strPtr("nope")}}, param: "/journal/config/openai_model", notFnd: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, err := New(tc.api)
			require.NoError(t, err)
			got, err := c.GetParameter(context.Background(), tc.param)
			switch {
			case tc.notFnd:
				require.ErrorIs(t, err, ErrParameterNotFound)
				require.ErrorContains(t, err, tc.param)
			case tc.wantErr != "":
				require.EqualError(t, err, tc.wantErr)
			default:
				require.NoError(t, err)
				require.Equal(t, tc.want, got)
			}
		})
	}
}

func TestGetParameter_ZeroClient(t *testing.T) {
	_, err := (&Client{}).GetParameter(context.Background(), "p")
	require.EqualError(t, err, "paramstore: client not initialized")
}
