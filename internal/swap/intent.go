package swap

// Intent is the message a view emits instead of threading callbacks
// through component layers. The engine is the single consumer.
type Intent struct {
	Type   IntentType `json:"type"`
	Token  string     `json:"token,omitempty"`
	Amount string     `json:"amount,omitempty"`
}

type IntentType string

const (
	IntentSelectSellToken IntentType = "select_sell_token"
	IntentSelectBuyToken  IntentType = "select_buy_token"
	IntentSetSellAmount   IntentType = "set_sell_amount"
	IntentSetBuyAmount    IntentType = "set_buy_amount"
	IntentSwitchTokens    IntentType = "switch_tokens"
	IntentMaximize        IntentType = "maximize"
	IntentCommit          IntentType = "commit"
)
