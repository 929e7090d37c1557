// Package swagger provides OpenAPI documentation for the genflow API.
//
//	@title						genflow API
//	@version					1.0
//	@description				genflow orchestrates image generation jobs across a pool of generation backends, and serves the partitioned content gallery and statistics pipeline.
//	@termsOfService				https://github.com/pixforge/genflow
//
//	@contact.name				genflow Support
//	@contact.url				https://github.com/pixforge/genflow/issues
//	@contact.email				support@pixforge.dev
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8585
//	@BasePath					/api/v1
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT Bearer token authentication. Format: "Bearer {token}"
//
//	@tag.name					generation-jobs
//	@tag.description			Generation job submission, status, cancellation, and progress
//
//	@tag.name					content
//	@tag.description			Partitioned content gallery reads with tag filtering and keyset pagination
//
//	@tag.name					stats
//	@tag.description			Tag cardinality and gen-source statistics
package swagger
