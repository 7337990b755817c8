package layerapi

// GraphQL documents for the generation backend. Every operation returns a
// union discriminated by __typename, with Error as the failure arm.

const queryGetWorkspaceUsage = `
query GetWorkspaceUsage($input: GetWorkspaceUsageInput!) {
    getWorkspaceUsage(input: $input) {
        __typename
        ... on WorkspaceUsage {
            entitlement {
                balance
                hasAccess
            }
        }
        ... on Error {
            code
            message
        }
    }
}`

const queryGetInferencesByID = `
query GetInferencesById($input: GetInferencesByIdInput!) {
    getInferencesById(input: $input) {
        __typename
        ... on InferencesResult {
            inferences {
                id
                status
                errorCode
                files {
                    id
                    status
                    url
                }
            }
        }
        ... on Error {
            code
            message
        }
    }
}`

const queryGetStyleByID = `
query GetStyleById($input: GetStyleByIdInput!) {
    getStyleById(input: $input) {
        __typename
        ... on Style {
            id
            name
            status
            type
        }
        ... on Error {
            code
            message
        }
    }
}`

const queryListStyles = `
query ListStyles($input: ListStylesInput!) {
    listStyles(input: $input) {
        __typename
        ... on StylesConnection {
            edges {
                node {
                    id
                    name
                    status
                    type
                }
            }
        }
        ... on Error {
            code
            message
        }
    }
}`

const mutationGenerateImages = `
mutation GenerateImages($input: GenerateImagesInput!) {
    generateImages(input: $input) {
        __typename
        ... on Inference {
            id
            status
            files {
                id
                status
                url
            }
        }
        ... on Error {
            type
            code
            message
        }
    }
}`

const mutationCreateStyle = `
mutation CreateStyle($input: CreateStyleInput!) {
    createStyle(input: $input) {
        __typename
        ... on Style {
            id
            name
            status
        }
        ... on Error {
            code
            message
        }
    }
}`
