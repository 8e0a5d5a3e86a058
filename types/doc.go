/*
包 types 定义政策法规问答核心的共享数据模型与统一错误体系。

# 核心模型

  - Entity / EntityKind: 知识图谱实体及其封闭类型枚举（人物、机构、地点、
    概念、时间、法规等）。
  - Relation / RelationPredicate: 实体间的有向关系及谓词词表
    （PUBLISHES、APPLIES_TO、MANAGES 等）。
  - RetrievedDocument: 向量检索返回的文档片段，携带相似度分数。
  - PolicyRef: 政策文件引用（标题、文号、发布机构、发布日期、条款）。
  - GraphContext: 图谱检索结果（实体、政策、关系路径），失败时退化为
    空上下文而非 nil。
  - FusedContext / ContextBlock: 融合后的 LLM 上下文，按块记录来源。
  - EvaluationResult: 多维评估结果（维度分、总分、质量等级、诊断）。

# 错误体系

统一的 ErrorCode 字符串码加结构化 *Error，支持 errors.Is/As 链式展开。
管道级错误码：EXTRACTION_ERROR、RETRIEVAL_ERROR、LLM_SERVICE_ERROR、
EVALUATION_ERROR。
*/
package types
