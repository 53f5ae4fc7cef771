package workflow

import (
	"fmt"

	"github.com/BaSui01/consultflow/types"
)

// ====== 路由谓词 ======

// Always 始终为真的谓词。
func Always() Predicate {
	return func(*State) bool { return true }
}

// Not 取反。
func Not(p Predicate) Predicate {
	return func(s *State) bool { return !p(s) }
}

// All 所有谓词均为真时成立。
func All(ps ...Predicate) Predicate {
	return func(s *State) bool {
		for _, p := range ps {
			if !p(s) {
				return false
			}
		}
		return true
	}
}

// Any 任一谓词为真时成立。
func Any(ps ...Predicate) Predicate {
	return func(s *State) bool {
		for _, p := range ps {
			if p(s) {
				return true
			}
		}
		return false
	}
}

// HasFinalResponse 已存在预设最终回复（例如问候短路）。
func HasFinalResponse() Predicate {
	return func(s *State) bool {
		_, ok := s.FinalResponse()
		return ok
	}
}

// MetadataEquals 元数据键等于给定值。
func MetadataEquals(key, value string) Predicate {
	return func(s *State) bool { return s.Metadata(key) == value }
}

// OutputStatus 指定 agent 的输出状态等于 status。
func OutputStatus(name string, status types.AgentStatus) Predicate {
	return func(s *State) bool {
		r, ok := s.Output(name)
		return ok && r.Status == status
	}
}

// IsSelected 指定专家在动态选择中被选中。
func IsSelected(name string) Predicate {
	return func(s *State) bool { return s.Selected(name) }
}

// ====== 循环策略 ======

// ContinueWhile 将谓词包装为循环策略。
func ContinueWhile(p Predicate) LoopPolicy {
	return LoopPolicyFunc(func(s *State, _ int) bool { return p(s) })
}

// Never 从不继续的策略（单次执行）。
func Never() LoopPolicy {
	return LoopPolicyFunc(func(*State, int) bool { return false })
}

// ====== 安全求值 ======

// 谓词与策略中的 panic 被转换为错误，由执行器作为致命错误处理。
func evalPredicate(p Predicate, s *State) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("predicate panic: %v", r)
		}
	}()
	return p(s), nil
}

func evalPolicy(p LoopPolicy, s *State, iteration int) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("loop policy panic: %v", r)
		}
	}()
	return p.Continue(s, iteration), nil
}
