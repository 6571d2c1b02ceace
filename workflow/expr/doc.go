// 版权所有 2024 FlowEngine Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 expr 提供受限的条件表达式求值器，用于 CONDITIONAL 步骤。

# 概述

表达式由手写的递归下降解析器处理，只支持比较、逻辑、算术运算、
字面量以及变量引用，绝不执行任意代码。

# 核心类型

  - Evaluate：求值并返回布尔结果，失败时返回错误
  - ConditionEvaluator：包装 Evaluate，任何失败都记录日志并返回 false

# 语法

  - 逻辑：|| && !
  - 比较：== != === !== > < >= <=
  - 算术：+ - * / %（+ 在字符串间表示拼接）
  - 字面量：数字、"..." 或 '...' 字符串、true、false、null
  - 变量：点路径 lease.status 或占位符 ${status}；未定义变量是错误
*/
package expr
