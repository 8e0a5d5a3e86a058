/*
软件包 observability 提供问答链路的可观测能力，包含 Prometheus
指标采集与 OpenTelemetry SDK 初始化两部分。

# 核心类型

  - Collector：Prometheus 指标收集器，使用 promauto 自动注册，
    按 namespace 隔离，覆盖问答、检索、评估与 LLM 四大维度。
  - Providers：OTel SDK 的 TracerProvider 与 MeterProvider 持有者，
    遥测关闭时两者为 nil，Shutdown 为空操作。

# 主要指标

  - 问答指标：问题总数（按状态与图谱增强分组）、各阶段耗时、
    答案可信度分布。
  - 检索指标：各来源召回文档数分布。
  - 评估指标：各维度评分分布，按 dimension 分组。
  - LLM 指标：请求总数、请求耗时、Token 用量，按 provider/model 分组。
*/
package observability
