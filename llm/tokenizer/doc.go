/*
包 tokenizer 为提示词预算提供 token 计数与截断。

TiktokenTokenizer 基于 tiktoken-go 做精确计数，编码按模型名前缀选择，
同一编码进程内只加载一次。EstimatorTokenizer 按字符类别估算，
不依赖任何数据文件。ForModel 组合二者：tiktoken 加载失败后切换到
估算器，此后不再重试。
*/
package tokenizer
