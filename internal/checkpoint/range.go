package checkpoint

// Range é a faixa de índices [Start, End] a processar. Start > End significa
// faixa vazia (nada a fazer).
type Range struct {
	Start int
	End   int
}

// Empty informa se não há vídeos a processar.
func (r Range) Empty() bool { return r.Start > r.End }

// Len é o número de vídeos da faixa.
func (r Range) Len() int {
	if r.Empty() {
		return 0
	}
	return r.End - r.Start + 1
}

// SelectRange decide a faixa efetiva da execução. Pedido explícito ganha de
// checkpoint; checkpoint ganha do padrão (coleção inteira). A faixa sempre
// sai limitada a [1, manifestSize].
//
//   - reqStart/reqEnd em 0 significam "não pedido".
//   - Com checkpoint e sem pedido, retoma de LastCompletedIndex+1 até o
//     RangeEnd original (limitado ao tamanho atual da coleção).
func SelectRange(manifestSize int, cp *Checkpoint, reqStart, reqEnd int) Range {
	if manifestSize <= 0 {
		return Range{Start: 1, End: 0}
	}

	if reqStart > 0 || reqEnd > 0 {
		r := Range{Start: reqStart, End: reqEnd}
		if r.Start <= 0 {
			r.Start = 1
		}
		if r.End <= 0 || r.End > manifestSize {
			r.End = manifestSize
		}
		if r.Start > manifestSize {
			return Range{Start: r.Start, End: r.Start - 1}
		}
		return r
	}

	if cp != nil {
		end := cp.RangeEnd
		if end <= 0 || end > manifestSize {
			end = manifestSize
		}
		start := cp.LastCompletedIndex + 1
		if start < cp.RangeStart {
			start = cp.RangeStart
		}
		if start > end {
			return Range{Start: start, End: start - 1}
		}
		return Range{Start: start, End: end}
	}

	return Range{Start: 1, End: manifestSize}
}
