package strategy

// 中文说明：
// 信号状态机。按 ticker 维护 Flat/Long/Short 状态，EMA 三线多头排列且
// 当前不在 Long 时发出一次 Buy，空头排列且不在 Short 时发出一次 Sell，
// 其余一律 Hold（边沿触发：排列持续期间不重复发信号）。

// Action 单步动作。
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// State 状态机所处的仓位意图（与账本的实际成交数量无关，
// 部分成交不会让状态回退）。
type State string

const (
	StateFlat  State = "flat"
	StateLong  State = "long"
	StateShort State = "short"
)

// Signal 某个 ticker 在某个时间点的动作。
type Signal struct {
	TS     int64  `json:"ts"`
	Ticker string `json:"ticker"`
	Action Action `json:"action"`
}

// Active 非 Hold 即为活跃信号。
func (s Signal) Active() bool { return s.Action != ActionHold }

// Next 纯转移函数：给定前一状态与当前三条 EMA 值，返回动作与新状态。
// 任何 EMA 相等的临界情况都落入 Hold。
func Next(prior State, short, medium, long float64) (Action, State) {
	switch {
	case short > medium && medium > long && prior != StateLong:
		return ActionBuy, StateLong
	case short < medium && medium < long && prior != StateShort:
		return ActionSell, StateShort
	default:
		return ActionHold, prior
	}
}

// Tracker 按 ticker 记录状态，跨步携带。零值不可用，用 NewTracker。
type Tracker struct {
	states map[string]State
}

func NewTracker() *Tracker {
	return &Tracker{states: make(map[string]State)}
}

// Step 推进某个 ticker 一步。初始状态为 Flat。
func (t *Tracker) Step(ticker string, short, medium, long float64) Action {
	prior, ok := t.states[ticker]
	if !ok {
		prior = StateFlat
	}
	action, next := Next(prior, short, medium, long)
	t.states[ticker] = next
	return action
}

// StateOf 返回 ticker 当前状态。
func (t *Tracker) StateOf(ticker string) State {
	if s, ok := t.states[ticker]; ok {
		return s
	}
	return StateFlat
}

// Replay 从 Flat 起对整段 EMA 序列重放，返回逐点动作。
// 输入等长切片；确定性：同一输入必然得到同一输出。
func Replay(triple Triple) []Action {
	n := len(triple.Short)
	out := make([]Action, 0, n)
	state := StateFlat
	for i := 0; i < n; i++ {
		var action Action
		action, state = Next(state, triple.Short[i], triple.Medium[i], triple.Long[i])
		out = append(out, action)
	}
	return out
}
