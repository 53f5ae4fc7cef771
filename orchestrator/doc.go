// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package orchestrator runs consultations end to end.

An Orchestrator owns one immutable graph per Mode, all built when it is
created:

  - standard: detect_language, classify_query, retrieve_context, then every
    specialist in priority order and compile_response. Specialists that
    classification did not select are skipped; a greeting routes straight
    from classification to compile_response.
  - parallel: the same preparation, then a fan-out over the configured
    branches (technical and business by default) merged before compilation.
  - feedback_loop: the standard graph with refinement_loop from
    solution_architect to technical_research.
  - observable: the standard graph with every transition recorded and
    returned in the Result.

RunWorkflow returns the final response, the per-agent detail and the
context documents used. Stream yields the same run as transition events
followed by the result. Every run is saved to a workflow.RunStore.
*/
package orchestrator
