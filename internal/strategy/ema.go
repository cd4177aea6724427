package strategy

// 中文说明：
// 指数移动平均（EMA）计算。与 pandas 的 ewm(span, adjust=False) 对齐：
// 首值取第一条价格作为种子，之后按 EMA[i] = α·price[i] + (1-α)·EMA[i-1]
// 递推，α = 2/(span+1)。不做偏差修正。

// Spans 指定短/中/长三条 EMA 的窗口。
type Spans struct {
	Short  int `json:"short"`
	Medium int `json:"medium"`
	Long   int `json:"long"`
}

// Valid 要求三个窗口严格递增且为正。
func (s Spans) Valid() bool {
	return s.Short > 0 && s.Medium > s.Short && s.Long > s.Medium
}

// Triple 三条 EMA 序列，与输入价格序列等长。
type Triple struct {
	Short  []float64 `json:"short"`
	Medium []float64 `json:"medium"`
	Long   []float64 `json:"long"`
}

// EMA 对价格序列做无调整指数平滑。空输入返回空输出。
func EMA(prices []float64, span int) []float64 {
	if len(prices) == 0 || span <= 0 {
		return nil
	}
	alpha := 2.0 / float64(span+1)
	out := make([]float64, len(prices))
	out[0] = prices[0]
	for i := 1; i < len(prices); i++ {
		out[i] = alpha*prices[i] + (1-alpha)*out[i-1]
	}
	return out
}

// ComputeTriple 一次遍历生成三条 EMA。
func ComputeTriple(prices []float64, spans Spans) Triple {
	return Triple{
		Short:  EMA(prices, spans.Short),
		Medium: EMA(prices, spans.Medium),
		Long:   EMA(prices, spans.Long),
	}
}
