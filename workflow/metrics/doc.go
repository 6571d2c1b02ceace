// 版权所有 2024 FlowEngine Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 记录工作流执行样本并计算健康指标。

# 概述

Recorder 以固定容量的环形缓冲保存最近的执行样本（默认 5000 条），
满后淘汰最旧的样本。指标只在进程内计算，Prometheus 导出见
internal/metrics。

# 主要能力

  - WorkflowMetrics：单个工作流在窗口内的成功数、失败数、平均耗时、
    平均步骤数、错误率与最常见错误码
  - AllWorkflowMetrics：按工作流分组汇总
  - OverallHealth：错误率 > 10%、平均耗时 > 30s、成功率 < 90% 时告警；
    窗口内无数据视为健康（成功率 100）
  - ClearOlderThan：清理过期样本
*/
package metrics
