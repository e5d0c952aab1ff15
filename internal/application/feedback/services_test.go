package feedback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepfake-detector/api/internal/application"
	domain "github.com/deepfake-detector/api/internal/domain/feedback"
)

type memRepo struct {
	saved    []*domain.Record
	saveErr  error
	lastPage [2]int
}

func (r *memRepo) Save(_ context.Context, rec *domain.Record) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.saved = append(r.saved, rec)
	return nil
}

func (r *memRepo) Paginate(_ context.Context, page, pageSize int) ([]*domain.Record, error) {
	r.lastPage = [2]int{page, pageSize}
	return nil, nil
}

type recordingPublisher struct {
	reqs []domain.RetrainingRequest
	err  error
}

func (p *recordingPublisher) PublishRetraining(_ context.Context, req domain.RetrainingRequest) error {
	p.reqs = append(p.reqs, req)
	return p.err
}

var fixedNow = time.Date(2024, 2, 2, 10, 0, 0, 0, time.UTC)

func TestSubmit_StoresNormalizedRecord(t *testing.T) {
	repo := &memRepo{}
	pub := &recordingPublisher{}
	svc := &Service{Repo: repo, Retraining: pub, Clock: application.FixedClock{At: fixedNow}}

	id, err := svc.Submit(context.Background(), []byte(`{"result":{"deepfake":true,"confidence":0.7},"frame_ids":["f1"],"source":"news.example"}`))
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.Len(t, repo.saved, 1)

	rec := repo.saved[0]
	assert.Equal(t, id, rec.ID)
	assert.Equal(t, fixedNow, rec.ReceivedAt)
	assert.Equal(t, fixedNow, rec.Timestamp)
	assert.True(t, rec.PredictedIsDeepfake)
	assert.True(t, rec.WasCorrect)
	assert.Equal(t, []string{"f1"}, rec.FrameIDs)
	assert.Empty(t, pub.reqs)
}

func TestSubmit_PublishesCorrections(t *testing.T) {
	repo := &memRepo{}
	pub := &recordingPublisher{}
	svc := &Service{Repo: repo, Retraining: pub, Clock: application.FixedClock{At: fixedNow}}

	id, err := svc.Submit(context.Background(), []byte(`{"deepfake":true,"confidence":0.9,"wasCorrect":false,"userCorrection":false,"frameIds":["a","b"]}`))
	require.NoError(t, err)
	require.Len(t, pub.reqs, 1)
	assert.Equal(t, domain.RetrainingRequest{
		FeedbackID:          id,
		PredictedIsDeepfake: true,
		UserCorrection:      false,
		FrameIDs:            []string{"a", "b"},
		Source:              domain.DefaultSource,
	}, pub.reqs[0])
}

func TestSubmit_PublishFailureIsNotFatal(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc := &Service{Repo: &memRepo{}, Retraining: pub}

	id, err := svc.Submit(context.Background(), []byte(`{"wasCorrect":false,"userCorrection":true}`))
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Len(t, pub.reqs, 1)
}

func TestSubmit_NoCorrectionNoPublish(t *testing.T) {
	pub := &recordingPublisher{}
	svc := &Service{Repo: &memRepo{}, Retraining: pub}

	_, err := svc.Submit(context.Background(), []byte(`{"wasCorrect":false}`))
	require.NoError(t, err)
	assert.Empty(t, pub.reqs)
}

func TestSubmit_Errors(t *testing.T) {
	svc := &Service{Repo: &memRepo{}}
	_, err := svc.Submit(context.Background(), []byte(`[]`))
	require.ErrorIs(t, err, domain.ErrValidation)

	svc = &Service{Repo: &memRepo{saveErr: errors.New("disk full")}}
	_, err = svc.Submit(context.Background(), []byte(`{}`))
	require.ErrorIs(t, err, domain.ErrStorage)
}

func TestList_ClampsPaging(t *testing.T) {
	repo := &memRepo{}
	svc := &Service{Repo: repo}

	res, err := svc.List(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Page)
	assert.Equal(t, 20, res.PageSize)
	assert.NotNil(t, res.Data)
	assert.Equal(t, [2]int{1, 20}, repo.lastPage)

	res, err = svc.List(context.Background(), 3, 5000)
	require.NoError(t, err)
	assert.Equal(t, 200, res.PageSize)
	assert.Equal(t, [2]int{3, 200}, repo.lastPage)
}
