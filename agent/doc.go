// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package agent provides the consulting agent units and the preparation
tasks that run before them.

# Overview

Every specialization is a [Specialist]: a workflow.AgentUnit that renders a
prompt from the shared state with a [PromptBuilder] and calls an
llm.Generator. Model failures are converted into a response with
status=error and a short "<role> unavailable: <reason>" diagnostic, so a
single failing agent degrades the answer instead of aborting the run.

# Preparation tasks

  - [LanguageTask]: detects the query language (model or heuristic)
  - [ClassifyTask]: greeting short-circuit and dynamic specialist selection
  - [ContextRetrievalTask]: fills the context documents once per turn

# Refinement

[RefinementPolicy] is the injectable loop continuation policy used by the
feedback-loop workflow.

# Registry

[Registry] maps roles (including legacy aliases) to factories and is the
single place where role names are resolved.
*/
package agent
