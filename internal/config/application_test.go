package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleApplication = `{
  "globals": {"region": "us-east-1"},
  "pipelines": [
    {
      "id": "ingest",
      "name": "Ingest",
      "steps": [
        {
          "id": "read",
          "type": "pipeline",
          "engineMeta": {"objectFunction": "Reader.read"},
          "params": [{"name": "path", "value": "!region"}],
          "nextStepId": "write"
        },
        {
          "id": "write",
          "type": "pipeline",
          "engineMeta": {"objectFunction": "Writer.write"},
          "params": [{"name": "in", "value": "$read.primaryReturn"}]
        }
      ]
    }
  ],
  "executions": [
    {
      "id": "main",
      "pipelineIds": ["ingest"],
      "globals": {"batchSize": 100}
    }
  ],
  "pipelineListener": {
    "className": "com.acxiom.pipeline.DefaultPipelineListener",
    "parameters": {"verbose": true}
  }
}`

func TestParseSampleApplication(t *testing.T) {
	t.Parallel()

	app, err := Parse([]byte(sampleApplication))
	require.NoError(t, err)

	require.Contains(t, app.Globals, "region")
	require.Equal(t, "us-east-1", app.Globals["region"].Str)

	require.Len(t, app.Executions, 1)
	exec := app.Executions[0]
	require.Equal(t, "main", exec.ID)
	require.Len(t, exec.Pipelines, 1)
	require.Equal(t, "ingest", exec.Pipelines[0].ID)
	require.Equal(t, int64(100), exec.Globals["batchSize"].Int)

	require.NotNil(t, app.Listener)
	require.Equal(t, "com.acxiom.pipeline.DefaultPipelineListener", app.Listener.ClassName)
	require.True(t, app.Listener.Parameters["verbose"].Bool)
}

func TestParseRejectsInvalidJSON(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte("{not json"))
	require.Error(t, err)
}

func TestParseRejectsMissingExecutions(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte(`{"pipelines": []}`))
	require.Error(t, err)
}

func TestParseRejectsUnnamedManagerDescriptor(t *testing.T) {
	t.Parallel()

	raw := `{
	  "executions": [{"id": "main", "pipelines": [{"id": "p1", "steps": [{"id": "s1"}]}]}],
	  "securityManager": {"parameters": {}}
	}`
	_, err := Parse([]byte(raw))
	require.Error(t, err)
}

func TestParseResolvesInlinePipelines(t *testing.T) {
	t.Parallel()

	raw := `{
	  "executions": [
	    {
	      "id": "main",
	      "pipelines": [{"id": "inline", "steps": [{"id": "s1", "engineMeta": "Echo.run"}]}]
	    }
	  ]
	}`
	app, err := Parse([]byte(raw))
	require.NoError(t, err)
	require.Len(t, app.Executions, 1)
	require.Equal(t, "inline", app.Executions[0].Pipelines[0].ID)
	require.Equal(t, "Echo.run", app.Executions[0].Pipelines[0].Steps[0].EngineMeta.ObjectFunction)
}

func TestStripDriverKeysRemovesOnlyReservedKeys(t *testing.T) {
	t.Parallel()

	raw := []byte(`{"applicationJson":"{}","applicationConfigPath":"/tmp/app.json","applicationConfigurationLoader":"x","region":"us-east-1"}`)
	stripped, err := StripDriverKeys(raw)
	require.NoError(t, err)

	app, err := Parse(append([]byte(`{"globals":`), append(stripped, []byte(`,"executions":[{"id":"main","pipelines":[{"id":"p","steps":[{"id":"s1"}]}]}]}`)...)...))
	require.NoError(t, err)
	require.NotContains(t, app.Globals, ReservedApplicationJSON)
	require.NotContains(t, app.Globals, ReservedApplicationConfigPath)
	require.NotContains(t, app.Globals, ReservedApplicationConfigurationLoader)
	require.Contains(t, app.Globals, "region")
}
