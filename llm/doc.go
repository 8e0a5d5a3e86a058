/*
包 llm 提供生成模型的统一访问层。

Provider 抽象单个上游（当前实现为 ollama 兼容接口），Client 在其上叠加
令牌桶限流、指数退避重试与模型降级链。管道各组件只依赖 Client.Generate，
上游故障在此层被分类为统一错误码并标注可重试性。
*/
package llm
