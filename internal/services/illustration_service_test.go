package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/narratica/narratica/internal/errors"
	"github.com/narratica/narratica/internal/models"
	"github.com/narratica/narratica/internal/utils"
)

type trackingImageProvider struct {
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	failPage int
}

func (p *trackingImageProvider) Name() string { return "tracking" }

func (p *trackingImageProvider) GenerateImage(ctx context.Context, prompt, style string, pageNumber int) (string, error) {
	n := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		seen := p.maxSeen.Load()
		if n <= seen || p.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	if pageNumber == p.failPage {
		return "", errors.New("render failed")
	}
	return "img://" + prompt, nil
}

func docWithPages(prompts ...string) models.StoryDocument {
	doc := models.NewStoryDocument()
	for i, prompt := range prompts {
		doc.Pages = append(doc.Pages, models.Page{PageNumber: i + 1, Text: "t", ImagePrompt: prompt})
	}
	return doc
}

func TestIllustrateFillsImageURLs(t *testing.T) {
	provider := &trackingImageProvider{}
	svc := NewIllustrationService(provider, 2, utils.NewNopLogger())
	doc := docWithPages("a", "", "c", "d", "e")

	got, err := svc.Illustrate(context.Background(), doc, "watercolor")
	require.NoError(t, err)

	assert.Equal(t, "img://a", got.Pages[0].ImageURL)
	assert.Empty(t, got.Pages[1].ImageURL)
	assert.Equal(t, "img://e", got.Pages[4].ImageURL)
	assert.LessOrEqual(t, provider.maxSeen.Load(), int32(2))

	// 原文档不被修改
	assert.Empty(t, doc.Pages[0].ImageURL)
}

func TestIllustrateProviderError(t *testing.T) {
	svc := NewIllustrationService(&trackingImageProvider{failPage: 2}, 4, utils.NewNopLogger())
	_, err := svc.Illustrate(context.Background(), docWithPages("a", "b", "c"), "")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeProcessing, apperrors.TypeOf(err))
	assert.Contains(t, err.Error(), "page 2")
}

func TestPlaceholderImageProvider(t *testing.T) {
	p := NewPlaceholderImageProvider("https://placehold.co/")
	url, err := p.GenerateImage(context.Background(), "a fox", "watercolor", 3)
	require.NoError(t, err)
	assert.Equal(t, "https://placehold.co/1024x768/png?text=Page+3+%28watercolor%29", url)

	again, err := p.GenerateImage(context.Background(), "a fox", "watercolor", 3)
	require.NoError(t, err)
	assert.Equal(t, url, again)
}
