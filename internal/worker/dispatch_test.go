package worker_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arknettransit/dutyplan/internal/gtfsimport"
	"github.com/arknettransit/dutyplan/internal/worker"
)

type recordingImporter struct {
	urls []string
	err  error
}

func (r *recordingImporter) Import(_ context.Context, url string) (*gtfsimport.Result, error) {
	r.urls = append(r.urls, url)
	if r.err != nil {
		return nil, r.err
	}
	return &gtfsimport.Result{Blocks: 1, Trips: 2}, nil
}

func newDispatcher(t *testing.T, importer worker.FeedImporter) *worker.Dispatcher {
	t.Helper()
	job := worker.NewValidationJob(worker.ValidationJobConfig{
		Config:   worker.ValidationConfig{CountryID: "zm"},
		Logger:   zerolog.Nop(),
		Verifier: seedBlocks(t),
	})
	return worker.NewDispatcher(worker.DispatcherConfig{
		Validation:     job,
		Importer:       importer,
		DefaultFeedURL: "https://transit.example.com/gtfs.zip",
		Logger:         zerolog.Nop(),
	})
}

func TestDispatcher_Dispatch(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		jobType string
		wantErr error
	}{
		{
			name:    "validate country",
			payload: `{"job_type":"validate_blocks"}`,
			jobType: worker.JobValidateBlocks,
		},
		{
			name:    "validate named blocks",
			payload: `{"job_type":"validate_blocks","block_ids":["b1","b2"]}`,
			jobType: worker.JobValidateBlocks,
		},
		{
			name:    "only missing blocks",
			payload: `{"job_type":"validate_blocks","block_ids":["x","y"]}`,
			jobType: worker.JobValidateBlocks,
			wantErr: errors.New("too many verification failures: 2/2"),
		},
		{
			name:    "import default feed",
			payload: `{"job_type":"import_feed"}`,
			jobType: worker.JobImportFeed,
		},
		{
			name:    "unknown job",
			payload: `{"job_type":"provider_refresh"}`,
			jobType: "provider_refresh",
			wantErr: worker.ErrUnknownJobType,
		},
		{
			name:    "malformed",
			payload: `{"job_type":`,
			wantErr: worker.ErrMalformedMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDispatcher(t, &recordingImporter{})

			jobType, err := d.Dispatch(context.Background(), []byte(tt.payload))
			assert.Equal(t, tt.jobType, jobType)

			switch {
			case tt.wantErr == nil:
				assert.NoError(t, err)
			case errors.Is(tt.wantErr, worker.ErrUnknownJobType), errors.Is(tt.wantErr, worker.ErrMalformedMessage):
				assert.ErrorIs(t, err, tt.wantErr)
			default:
				assert.EqualError(t, err, tt.wantErr.Error())
			}
		})
	}
}

func TestDispatcher_ImportFeed(t *testing.T) {
	importer := &recordingImporter{}
	d := newDispatcher(t, importer)

	require.NoError(t, d.Run(context.Background(), worker.JobMessage{JobType: worker.JobImportFeed}))
	require.NoError(t, d.Run(context.Background(), worker.JobMessage{
		JobType: worker.JobImportFeed,
		FeedURL: "https://other.example.com/feed.zip",
	}))
	assert.Equal(t, []string{
		"https://transit.example.com/gtfs.zip",
		"https://other.example.com/feed.zip",
	}, importer.urls)

	importer.err = errors.New("breaker open")
	err := d.Run(context.Background(), worker.JobMessage{JobType: worker.JobImportFeed})
	assert.ErrorIs(t, err, importer.err)
}

func TestDispatcher_ImportFeed_NoURL(t *testing.T) {
	d := worker.NewDispatcher(worker.DispatcherConfig{
		Importer: &recordingImporter{},
		Logger:   zerolog.Nop(),
	})

	err := d.Run(context.Background(), worker.JobMessage{JobType: worker.JobImportFeed})
	assert.ErrorIs(t, err, worker.ErrNoFeedURL)
}
