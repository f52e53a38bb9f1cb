package responder

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// Intent 回复意图
type Intent string

const (
	IntentGreeting Intent = "greeting"
	IntentHelp     Intent = "help"
	IntentTime     Intent = "time"
	IntentThanks   Intent = "thanks"
	IntentFarewell Intent = "farewell"
	IntentEcho     Intent = "echo"
)

// ReplyIntent 分类结果
type ReplyIntent struct {
	Intent Intent
	Text   string
}

// Responder 文本回复策略
type Responder interface {
	Classify(text string) ReplyIntent
}

type rule struct {
	intent  Intent
	words   []string // 英文，整词匹配
	phrases []string // 中文，子串匹配
}

// 顺序即优先级
var defaultRules = []rule{
	{intent: IntentHelp, words: []string{"help", "menu", "commands"}, phrases: []string{"帮助", "菜单", "怎么用"}},
	{intent: IntentTime, words: []string{"time", "date", "now"}, phrases: []string{"时间", "几点", "日期"}},
	{intent: IntentThanks, words: []string{"thanks", "thank", "thx"}, phrases: []string{"谢谢", "感谢", "多谢"}},
	{intent: IntentFarewell, words: []string{"bye", "goodbye", "later"}, phrases: []string{"再见", "拜拜", "晚安"}},
	{intent: IntentGreeting, words: []string{"hi", "hello", "hey"}, phrases: []string{"你好", "您好", "嗨", "早上好"}},
}

const helpText = "我可以回复这些内容：\n- 问好（你好 / hello）\n- 查询时间（时间 / time）\n- 帮助（帮助 / help）\n其他内容会原样回显。"

// KeywordResponder 关键词匹配回复
type KeywordResponder struct {
	rules []rule

	// Now 可替换的时钟（测试用）
	Now      func() time.Time
	Location *time.Location
}

// NewKeywordResponder 创建默认关键词回复器
func NewKeywordResponder() *KeywordResponder {
	return &KeywordResponder{rules: defaultRules}
}

// Classify 根据关键词选择意图并生成回复文本
func (r *KeywordResponder) Classify(text string) ReplyIntent {
	text = strings.TrimSpace(text)
	if text == "" {
		return ReplyIntent{Intent: IntentHelp, Text: helpText}
	}

	intent := r.match(text)
	return ReplyIntent{Intent: intent, Text: r.render(intent, text)}
}

func (r *KeywordResponder) match(text string) Intent {
	lower := strings.ToLower(text)
	tokens := map[string]struct{}{}
	for _, tok := range strings.FieldsFunc(lower, func(c rune) bool { return !unicode.IsLetter(c) || c > unicode.MaxASCII }) {
		tokens[tok] = struct{}{}
	}

	for _, ru := range r.rules {
		for _, w := range ru.words {
			if _, ok := tokens[w]; ok {
				return ru.intent
			}
		}
		for _, p := range ru.phrases {
			if strings.Contains(text, p) {
				return ru.intent
			}
		}
	}
	return IntentEcho
}

func (r *KeywordResponder) render(intent Intent, text string) string {
	switch intent {
	case IntentGreeting:
		return "你好！有什么可以帮你的吗？"
	case IntentHelp:
		return helpText
	case IntentTime:
		return fmt.Sprintf("现在时间：%s", r.now().Format("2006-01-02 15:04:05"))
	case IntentThanks:
		return "不客气！"
	case IntentFarewell:
		return "再见，祝你愉快！"
	default:
		return fmt.Sprintf("收到：%s", text)
	}
}

func (r *KeywordResponder) now() time.Time {
	now := time.Now()
	if r.Now != nil {
		now = r.Now()
	}
	if r.Location != nil {
		now = now.In(r.Location)
	}
	return now
}

var _ Responder = (*KeywordResponder)(nil)
