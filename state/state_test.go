package state_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/Darkness4/mp4-concat-go/state"
	"github.com/stretchr/testify/require"
)

func TestSetJobState(t *testing.T) {
	// Arrange
	s := state.New()

	// Act
	s.SetJobState(
		"dashcam",
		state.JobStateConcatenating,
		state.WithExtra(map[string]any{
			"output": "out.mp4",
		}),
		state.WithLabels(map[string]string{"camera": "front"}),
	)
	s.SetJobState("dashcam", state.JobStateFinished)

	// Assert
	require.Equal(t, state.JobStateFinished, s.GetJobState("dashcam"))
	require.Equal(t, state.JobStateUnspecified, s.GetJobState("unknown"))
	require.Equal(t, map[string]any{"output": "out.mp4"}, s.Jobs["dashcam"].Extra)
	require.Equal(t, map[string]string{"camera": "front"}, s.Jobs["dashcam"].Labels)

	s.Remove("dashcam")
	require.Equal(t, state.JobStateUnspecified, s.GetJobState("dashcam"))
}

func TestSetJobError(t *testing.T) {
	s := state.New()

	s.SetJobError("test", errors.New("error1"))
	s.SetJobError("test", errors.New("error2"))
	s.SetJobError("test", nil)

	require.Len(t, s.Jobs["test"].Errors, 2)
	require.Equal(t, "error1", s.Jobs["test"].Errors[0].Error)
	require.Equal(t, "error2", s.Jobs["test"].Errors[1].Error)

	for i := 0; i < 30; i++ {
		s.SetJobError("test", fmt.Errorf("error%d", i+3))
	}
	require.Len(t, s.Jobs["test"].Errors, 20)
	require.Equal(t, "error32", s.Jobs["test"].Errors[19].Error)
}

func TestMarshalJSON(t *testing.T) {
	s := state.New()
	s.SetJobState("test", state.JobStateCleaning)

	b, err := json.Marshal(s)
	require.NoError(t, err)

	var decoded struct {
		Jobs map[string]struct {
			State state.JobState `json:"state"`
		} `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(b, &decoded))
	require.Equal(t, state.JobStateCleaning, decoded.Jobs["test"].State)
	require.Contains(t, string(b), `"CLEANING"`)
}
