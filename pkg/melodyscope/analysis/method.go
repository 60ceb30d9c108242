package analysis

// Method tags which analysis produced a record. The set is closed: the
// storage layer enforces the same list with a CHECK constraint, but this type
// is the primary validation point at the write boundary.
type Method string

const (
	MethodChromaprint          Method = "chromaprint"
	MethodHPCP                 Method = "hpcp"
	MethodDTW                  Method = "dtw"
	MethodLyrics               Method = "lyrics"
	MethodMusicIdentification  Method = "music_identification"
	MethodSimilarityDetection  Method = "similarity_detection"
	MethodMelodySimilarity     Method = "melody_similarity"
	MethodCoverDetection       Method = "cover_detection"
	MethodSimilarityComparison Method = "similarity_comparison"
	MethodOther                Method = "other"
)

// Methods returns the full closed enumeration, in constraint order.
func Methods() []Method {
	return []Method{
		MethodChromaprint,
		MethodHPCP,
		MethodDTW,
		MethodLyrics,
		MethodMusicIdentification,
		MethodSimilarityDetection,
		MethodMelodySimilarity,
		MethodCoverDetection,
		MethodSimilarityComparison,
		MethodOther,
	}
}

func (m Method) Valid() bool {
	switch m {
	case MethodChromaprint, MethodHPCP, MethodDTW, MethodLyrics,
		MethodMusicIdentification, MethodSimilarityDetection,
		MethodMelodySimilarity, MethodCoverDetection,
		MethodSimilarityComparison, MethodOther:
		return true
	}
	return false
}

// TwoTrack reports whether the method compares a pair of tracks and so
// requires two track references and a score.
func (m Method) TwoTrack() bool {
	switch m {
	case MethodDTW, MethodSimilarityDetection, MethodMelodySimilarity,
		MethodCoverDetection, MethodSimilarityComparison:
		return true
	}
	return false
}

func (m Method) String() string { return string(m) }
