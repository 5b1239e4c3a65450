package rqcreator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/resquego/resque/internal/rqjob"
)

type fakeJob struct {
	Args struct {
		To string `json:"to"`
	}
	Queue string
	JobID string
	ran   bool
}

func (j *fakeJob) Perform(ctx context.Context) error {
	j.ran = true
	return nil
}

func TestRegistryCreate(t *testing.T) {
	r := NewRegistry()
	var built *fakeJob
	r.Register("SendEmail", func(ctx context.Context, env *rqjob.Envelope) (rqjob.Instance, error) {
		built = &fakeJob{}
		return built, nil
	})

	env, err := rqjob.NewEnvelope("SendEmail", "id-1", map[string]string{"to": "a@b.com"})
	require.NoError(t, err)

	instance, err := r.Create(context.Background(), env)
	require.NoError(t, err)
	require.NoError(t, instance.Perform(context.Background()))
	require.True(t, built.ran)
}

func TestRegistryCreateUnknownClass(t *testing.T) {
	r := NewRegistry()
	env, err := rqjob.NewEnvelope("Missing", "", nil)
	require.NoError(t, err)

	_, err = r.Create(context.Background(), env)
	require.Error(t, err)
}

func TestLegacyCreatorUnmarshalsArgs(t *testing.T) {
	c := NewLegacyCreator()
	c.RegisterType("SendEmail", &fakeJob{})

	env, err := rqjob.NewEnvelope("SendEmail", "id-2", map[string]string{"to": "c@d.com"})
	require.NoError(t, err)

	instance, err := c.Create(context.Background(), env)
	require.NoError(t, err)
	fj, ok := instance.(*fakeJob)
	require.True(t, ok)
	require.Equal(t, "c@d.com", fj.Args.To)
	require.Equal(t, "id-2", fj.JobID)
}

func TestLegacyCreatorUnknownClass(t *testing.T) {
	c := NewLegacyCreator()
	env, err := rqjob.NewEnvelope("Missing", "", nil)
	require.NoError(t, err)

	_, err = c.Create(context.Background(), env)
	require.Error(t, err)
}
