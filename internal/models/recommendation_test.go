package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResearchRecordFresh(t *testing.T) {
	rec := &ResearchRecord{
		JobTitle:  "Senior Software Engineer",
		Location:  "SEA",
		Collected: true,
	}

	assert.True(t, rec.Fresh("Senior Software Engineer", "SEA"))
	// matching is case-insensitive on both halves of the pair
	assert.True(t, rec.Fresh("senior software engineer", "sea"))
	assert.False(t, rec.Fresh("Staff Software Engineer", "SEA"))
	assert.False(t, rec.Fresh("Senior Software Engineer", "LAX"))
}

func TestResearchRecordFreshRequiresCollection(t *testing.T) {
	rec := &ResearchRecord{JobTitle: "Senior Software Engineer", Location: "SEA"}
	assert.False(t, rec.Fresh("Senior Software Engineer", "SEA"))
}

func TestResearchRecordFreshNilAndEmptyPair(t *testing.T) {
	var rec *ResearchRecord
	assert.False(t, rec.Fresh("Senior Software Engineer", "SEA"))

	// a collected record with no stored pair never matches, not even ""
	rec = &ResearchRecord{Collected: true}
	assert.False(t, rec.Fresh("", ""))
}

func TestResearchRecordFreshWithoutMarketMatch(t *testing.T) {
	// a collection attempt that found nothing still counts; the next turn
	// must not recollect the same pair
	rec := &ResearchRecord{
		JobTitle:   "Senior Software Engineer",
		Location:   "SEA",
		Collected:  true,
		MarketData: MarketResult{Source: "CompRanges.csv", Available: false},
	}
	assert.True(t, rec.Fresh("Senior Software Engineer", "SEA"))
}
