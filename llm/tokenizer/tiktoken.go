package tokenizer

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// 同一编码在进程内只加载一次，首次加载可能需要下载 BPE 数据
var encodings sync.Map // name -> *encodingSlot

type encodingSlot struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
	err  error
}

func loadEncoding(name string) (*tiktoken.Tiktoken, error) {
	v, _ := encodings.LoadOrStore(name, &encodingSlot{})
	slot := v.(*encodingSlot)
	slot.once.Do(func() {
		slot.enc, slot.err = tiktoken.GetEncoding(name)
		if slot.err != nil {
			slot.err = fmt.Errorf("load tiktoken encoding %s: %w", name, slot.err)
		}
	})
	return slot.enc, slot.err
}

// TiktokenTokenizer OpenAI 模型的精确计数，未知模型按 cl100k_base 处理
type TiktokenTokenizer struct {
	model modelSpec
}

func NewTiktokenTokenizer(model string) *TiktokenTokenizer {
	return &TiktokenTokenizer{model: lookupModel(model)}
}

func (t *TiktokenTokenizer) encode(text string) (*tiktoken.Tiktoken, []int, error) {
	enc, err := loadEncoding(t.model.encoding)
	if err != nil {
		return nil, nil, err
	}
	return enc, enc.Encode(text, nil, nil), nil
}

func (t *TiktokenTokenizer) CountTokens(text string) (int, error) {
	_, ids, err := t.encode(text)
	return len(ids), err
}

func (t *TiktokenTokenizer) Truncate(text string, maxTokens int) (string, error) {
	enc, ids, err := t.encode(text)
	switch {
	case err != nil:
		return "", err
	case maxTokens <= 0:
		return "", nil
	case len(ids) <= maxTokens:
		return text, nil
	}
	return enc.Decode(ids[:maxTokens]), nil
}

func (t *TiktokenTokenizer) MaxTokens() int { return t.model.window }

func (t *TiktokenTokenizer) Name() string { return "tiktoken[" + t.model.encoding + "]" }
