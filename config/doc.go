// Package config 定义 consultflow 的配置结构与加载流程。
//
// Loader 以 DefaultConfig 为底，先合并 YAML 文件，再用
// CONSULTFLOW_<节>_<字段> 环境变量覆盖，最后执行调用方注册的校验器。
// Config.Validate 汇总所有字段问题后一次返回。
package config
