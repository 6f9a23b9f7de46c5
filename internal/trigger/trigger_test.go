package trigger

import (
	"testing"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/obraflow/internal/jobs"
)

const docName = "projects/p/databases/(default)/documents/planComparisonJobs/job-42"

func newEvent(t *testing.T, eventType, data string) cloudevents.Event {
	t.Helper()
	e := cloudevents.NewEvent()
	e.SetID("evt-1")
	e.SetSource("//firestore.googleapis.com/projects/p/databases/(default)")
	e.SetType(eventType)
	e.SetSubject("documents/planComparisonJobs/job-42")
	require.NoError(t, e.SetData(cloudevents.ApplicationJSON, []byte(data)))
	return e
}

func doc(status string) string {
	return `{"name":"` + docName + `","fields":{"status":{"stringValue":"` + status + `"},"pageCount":{"integerValue":"3"}}}`
}

func TestParse_Created(t *testing.T) {
	c, err := Parse(newEvent(t, EventCreated, `{"value":`+doc("queued")+`}`))
	require.NoError(t, err)
	assert.Equal(t, "job-42", c.DocID)
	assert.True(t, c.Created)
	assert.Equal(t, jobs.Status(""), c.Before)
	assert.Equal(t, jobs.StatusQueued, c.After)
	assert.True(t, c.CreatedIn(jobs.StatusQueued))
}

func TestParse_Updated(t *testing.T) {
	data := `{"value":` + doc("generating-impactos") + `,"oldValue":` + doc("analyzing-diff") +
		`,"updateMask":{"fieldPaths":["status","results"]}}`
	c, err := Parse(newEvent(t, EventUpdated, data))
	require.NoError(t, err)
	assert.False(t, c.Created)
	assert.Equal(t, jobs.StatusAnalyzingDiff, c.Before)
	assert.True(t, c.Entered(jobs.StatusGeneratingImpactos))
	assert.False(t, c.CreatedIn(jobs.StatusGeneratingImpactos))
}

func TestParse_DeletedFallsBackToOldValue(t *testing.T) {
	c, err := Parse(newEvent(t, EventDeleted, `{"oldValue":`+doc("done")+`}`))
	require.NoError(t, err)
	assert.Equal(t, "job-42", c.DocID)
	assert.Equal(t, jobs.Status(""), c.After)
	assert.False(t, c.Entered(jobs.StatusDone))
}

func TestParse_Rejects(t *testing.T) {
	_, err := Parse(newEvent(t, "google.cloud.storage.object.v1.finalized", `{}`))
	assert.Error(t, err)

	_, err = Parse(newEvent(t, EventWritten, `not json`))
	assert.Error(t, err)
}

func TestChange_Guards(t *testing.T) {
	tests := []struct {
		name    string
		change  Change
		status  jobs.Status
		entered bool
		created bool
	}{
		{"created queued", Change{After: jobs.StatusQueued, Created: true}, jobs.StatusQueued, true, true},
		{"created processing", Change{After: jobs.StatusProcessing, Created: true}, jobs.StatusQueued, false, false},
		{"moved into analysis", Change{Before: jobs.StatusProcessing, After: jobs.StatusQueuedForAnalysis}, jobs.StatusQueuedForAnalysis, true, false},
		{"unrelated field change", Change{Before: jobs.StatusQueuedForAnalysis, After: jobs.StatusQueuedForAnalysis}, jobs.StatusQueuedForAnalysis, false, false},
		{"created for analysis", Change{After: jobs.StatusQueuedForAnalysis, Created: true}, jobs.StatusQueuedForAnalysis, true, true},
		{"left status", Change{Before: jobs.StatusQueuedForAnalysis, After: jobs.StatusProcessing}, jobs.StatusQueuedForAnalysis, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.entered, tt.change.Entered(tt.status))
			assert.Equal(t, tt.created, tt.change.CreatedIn(tt.status))
		})
	}
}
