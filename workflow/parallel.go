package workflow

import (
	"fmt"

	"github.com/BaSui01/consultflow/types"
)

// mergeBranches 将并行分支的写入合并回主状态。
// 合并策略为 agent_outputs 的键并集：分支之间写入的键必须互不相交，
// 因此合并结果与分支完成顺序无关。冲突属于配置错误。
func mergeBranches(parent *State, branches []Branch, results []*State) error {
	owner := make(map[string]string)
	for i, bst := range results {
		if bst == nil {
			continue
		}
		tag := branches[i].Tag
		for _, key := range sortedKeys(bst.writes) {
			if other, ok := owner[key]; ok {
				return types.NewError(types.ErrWorkflowConfig,
					fmt.Sprintf("branches %q and %q both wrote output %q", other, tag, key))
			}
			owner[key] = tag
			parent.putOutput(key, bst.outputs[key])
		}
		// 元数据按分支声明顺序覆盖
		for _, k := range sortedKeys(bst.metadata) {
			if v := bst.metadata[k]; parent.metadata[k] != v {
				parent.setMetadata(k, v)
			}
		}
	}
	return nil
}

// BranchOutputs 返回分支写入的 agent 名称（用于诊断与测试）。
func BranchOutputs(s *State) []string {
	if s.writes == nil {
		return nil
	}
	return sortedKeys(s.writes)
}
