package fingerprint

import (
	"strings"

	"github.com/invoiceflow/invoiceflow-backend/internal/extraction/domain"
)

// Bucketing thresholds for the scorer's own confidence classification.
//
// ScoreHighBucket is deliberately lower than the router's default high tier
// (95): the router was tightened without touching the scorer's bucketing.
// They are separate knobs; see the extraction config.
const (
	ScoreHighBucket   = 90.0
	ScoreMediumBucket = 50.0
)

// Band caps. The three bands are independent and together cap at 100.
const (
	requiredKeywordsCap = 30.0
	optionalKeywordsCap = 10.0
	tableMarkerPoints   = 20.0
	columnOrderCap      = 15.0
	footerPoints        = 10.0
	nifPositionPoints   = 5.0
	dateFormatPoints    = 5.0
	multipagePoints     = 5.0
)

// Score rates how well a document's raw text matches a stored fingerprint,
// on a 0-100 scale. Pure function: no side effects, deterministic.
func Score(text string, fp domain.Fingerprint) domain.FingerprintMatchResult {
	upper := strings.ToUpper(text)

	breakdown := domain.MatchBreakdown{
		Keywords:  scoreKeywords(upper, fp),
		Structure: scoreStructure(upper, fp.Structure),
		Layout:    scoreLayout(text, upper, fp.Layout),
	}

	total := breakdown.Keywords + breakdown.Structure + breakdown.Layout
	if total > 100 {
		total = 100
	}

	return domain.FingerprintMatchResult{
		Score:     total,
		Breakdown: breakdown,
		Bucket:    bucketFor(total),
	}
}

func bucketFor(score float64) domain.ConfidenceBucket {
	switch {
	case score >= ScoreHighBucket:
		return domain.BucketHigh
	case score >= ScoreMediumBucket:
		return domain.BucketMedium
	default:
		return domain.BucketLow
	}
}

// scoreKeywords awards up to 40 points: 30 for required keyword coverage and
// 10 for optional coverage. Matching is case-insensitive substring
// containment against the whole document.
func scoreKeywords(upper string, fp domain.Fingerprint) float64 {
	var score float64

	if len(fp.RequiredKeywords) > 0 {
		matched := 0
		for _, kw := range fp.RequiredKeywords {
			if kw != "" && strings.Contains(upper, strings.ToUpper(kw)) {
				matched++
			}
		}
		score += requiredKeywordsCap * float64(matched) / float64(len(fp.RequiredKeywords))
	}

	if len(fp.OptionalKeywords) > 0 {
		matched := 0
		for _, kw := range fp.OptionalKeywords {
			if kw != "" && strings.Contains(upper, strings.ToUpper(kw)) {
				matched++
			}
		}
		score += optionalKeywordsCap * float64(matched) / float64(len(fp.OptionalKeywords))
	}

	return score
}

// scoreStructure awards up to 35 points: 20 for the table start marker and
// 15 for expected columns appearing in the correct left-to-right order.
func scoreStructure(upper string, st domain.StructureMarkers) float64 {
	var score float64

	if st.TableStartMarker != "" && strings.Contains(upper, strings.ToUpper(st.TableStartMarker)) {
		score += tableMarkerPoints
	}

	if len(st.ColumnOrder) > 0 {
		inOrder := 0
		prev := -1
		for _, col := range st.ColumnOrder {
			pos, ok := findColumn(upper, col)
			if !ok {
				continue
			}
			// A column only counts when its first occurrence sits strictly
			// to the right of the previous matched column.
			if pos > prev {
				inOrder++
				prev = pos
			}
		}
		score += columnOrderCap * float64(inOrder) / float64(len(st.ColumnOrder))
	}

	return score
}

// scoreLayout awards up to 25 points from coarse physical-layout hints.
func scoreLayout(text, upper string, layout domain.LayoutHints) float64 {
	var score float64

	if layout.FooterPattern != "" && strings.Contains(upper, strings.ToUpper(layout.FooterPattern)) {
		score += footerPoints
	}

	if layout.NIFPosition != "" && nifPositionMatches(text, layout.NIFPosition) {
		score += nifPositionPoints
	}

	if layout.DateFormat != "" {
		if re, ok := dateFormats[layout.DateFormat]; ok && re.MatchString(text) {
			score += dateFormatPoints
		}
	}

	if predictMultipage(text) == layout.Multipage {
		score += multipagePoints
	}

	return score
}

// nifPositionMatches checks whether a nine-digit run sits where the
// fingerprint expects it: header means the first run starts within the first
// 20% of the text, footer means the last run starts within the last 20%.
func nifPositionMatches(text, position string) bool {
	positions := nifRunPositions(text)
	if len(positions) == 0 {
		return false
	}

	switch position {
	case domain.NIFPositionHeader:
		return positions[0] < len(text)/5
	case domain.NIFPositionFooter:
		return positions[len(positions)-1] >= len(text)*4/5
	}
	return false
}
