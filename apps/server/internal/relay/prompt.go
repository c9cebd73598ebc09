package relay

// MissingTestsPrompt replaces the caller's query when fixed-prompt mode is on.
const MissingTestsPrompt = `You are reviewing this repository to improve its unit test coverage.

1. Identify the source files that have no unit tests, or whose tests leave important behaviour uncovered.
2. For each such file, write the missing unit tests using the testing framework and conventions already used in the repository.
3. Return only the files that need to be created or changed, as a JSON array of objects with exactly two keys:
   "filePath": the path of the file relative to the repository root,
   "newContent": the complete new content of that file.

Do not return diffs or partial snippets. Every "newContent" value must be the full file.`
