package wordpress

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelrayburke/cniga-wigc/internal/models"
)

func TestReadSnapshot(t *testing.T) {
	doc := `{
  "events": ` + eventsJSON + `,
  "presenters": [
    {"id": 7, "title": {"rendered": "Ada &amp; Co"}, "acf": {"presenterorg": "Analytical", "sessions_speaker": [101]}}
  ],
  "sponsors": [
    {"slug": "gold", "label": "Gold", "sponsors": [{"id": 11, "type": "casinos", "name": "Casino"}]}
  ]
}`

	snap, err := ReadSnapshot(strings.NewReader(doc))
	require.NoError(t, err)

	require.Len(t, snap.Events, 2)
	assert.Equal(t, "AT&#038;T Keynote", snap.Events[0].Title, "titles stay encoded until normalization")
	assert.Equal(t, "11:10 am", snap.Events[0].StartTime)
	assert.Equal(t, "<p>Described</p>", snap.Events[0].ContentHTML)
	assert.Equal(t, "<p>Drinks</p>", snap.Events[1].ContentHTML)

	require.Len(t, snap.Presenters, 1)
	assert.Equal(t, "Ada & Co", snap.Presenters[0].Name)
	assert.Equal(t, []int{101}, snap.Presenters[0].SessionsSpeaker)

	assert.Equal(t, []models.SponsorGroup{{
		Slug: "gold", Label: "Gold",
		Sponsors: []models.Sponsor{{ID: 11, Type: "casinos", Name: "Casino"}},
	}}, snap.Sponsors)
}

func TestReadSnapshotEmpty(t *testing.T) {
	snap, err := ReadSnapshot(strings.NewReader(`{}`))
	require.NoError(t, err)
	assert.Empty(t, snap.Events)
	assert.NotNil(t, snap.Sponsors)
}

func TestReadSnapshotInvalid(t *testing.T) {
	_, err := ReadSnapshot(strings.NewReader(`{"events": {`))
	assert.ErrorContains(t, err, "failed to decode snapshot")
}
