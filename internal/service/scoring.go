package service

// AggregateScore 已评分作答的算术平均，没有已评分作答时返回 nil
func AggregateScore(scores []float64) *float64 {
	if len(scores) == 0 {
		return nil
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	mean := sum / float64(len(scores))
	return &mean
}
